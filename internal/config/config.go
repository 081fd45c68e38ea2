// Package config loads service configuration from an optional YAML file and
// the environment (prefix STOREAUTH_), with sane development defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Realm names. The admin dashboard and the customer storefront share the
// same auth service but carry different session policies.
const (
	RealmAdmin      = "admin"
	RealmStorefront = "storefront"
)

// RealmPolicy is the named, per-realm session policy. IdleTimeout of zero
// disables idle logout for the realm.
type RealmPolicy struct {
	IdleTimeout       time.Duration
	SessionTTL        time.Duration
	RequiredRole      string // role a user must hold to log in to this realm; empty allows any
	DefaultRole       string // role assigned to accounts registered through this realm
	AllowRegistration bool   // whether the realm accepts self-service registration
}

type AuthSettings struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
}

type RedisSettings struct {
	Addr     string
	Username string
	Password string
	DB       int
}

type PostgresSettings struct {
	DSN         string
	MaxIdleConn int
	MaxOpenConn int
}

type OIDCSettings struct {
	Enabled      bool
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// AdminSeed describes the initial admin account created at startup when no
// user with that email exists yet.
type AdminSeed struct {
	Email    string
	Password string
	Name     string
}

type Config struct {
	AppName        string
	Env            string
	Port           string
	AllowedOrigins []string
	Auth           AuthSettings
	Realms         map[string]RealmPolicy
	Redis          RedisSettings
	Postgres       PostgresSettings
	OIDC           OIDCSettings
	Admin          AdminSeed
}

// Load reads configuration from the given file path (optional) and the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STOREAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg := &Config{
		AppName:        v.GetString("app_name"),
		Env:            v.GetString("env"),
		Port:           v.GetString("port"),
		AllowedOrigins: v.GetStringSlice("cors.allowed_origins"),
		Auth: AuthSettings{
			Secret:          v.GetString("auth.secret"),
			Issuer:          v.GetString("auth.issuer"),
			AccessTokenTTL:  v.GetDuration("auth.access_token_ttl"),
			RefreshTokenTTL: v.GetDuration("auth.refresh_token_ttl"),
			ResetTokenTTL:   v.GetDuration("auth.reset_token_ttl"),
		},
		Realms: map[string]RealmPolicy{
			RealmAdmin: {
				IdleTimeout:       v.GetDuration("realms.admin.idle_timeout"),
				SessionTTL:        v.GetDuration("realms.admin.session_ttl"),
				RequiredRole:      v.GetString("realms.admin.required_role"),
				DefaultRole:       v.GetString("realms.admin.default_role"),
				AllowRegistration: v.GetBool("realms.admin.allow_registration"),
			},
			RealmStorefront: {
				IdleTimeout:       v.GetDuration("realms.storefront.idle_timeout"),
				SessionTTL:        v.GetDuration("realms.storefront.session_ttl"),
				RequiredRole:      v.GetString("realms.storefront.required_role"),
				DefaultRole:       v.GetString("realms.storefront.default_role"),
				AllowRegistration: v.GetBool("realms.storefront.allow_registration"),
			},
		},
		Redis: RedisSettings{
			Addr:     v.GetString("redis.addr"),
			Username: v.GetString("redis.username"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Postgres: PostgresSettings{
			DSN:         v.GetString("postgres.dsn"),
			MaxIdleConn: v.GetInt("postgres.max_idle_conn"),
			MaxOpenConn: v.GetInt("postgres.max_open_conn"),
		},
		OIDC: OIDCSettings{
			Enabled:      v.GetBool("oidc.enabled"),
			Issuer:       v.GetString("oidc.issuer"),
			ClientID:     v.GetString("oidc.client_id"),
			ClientSecret: v.GetString("oidc.client_secret"),
			RedirectURL:  v.GetString("oidc.redirect_url"),
			Scopes:       v.GetStringSlice("oidc.scopes"),
		},
		Admin: AdminSeed{
			Email:    v.GetString("admin.email"),
			Password: v.GetString("admin.password"),
			Name:     v.GetString("admin.name"),
		},
	}

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("config: auth.secret is required")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "storeauth")
	v.SetDefault("env", "DEV")
	v.SetDefault("port", ":8080")

	v.SetDefault("cors.allowed_origins", []string{})

	v.SetDefault("auth.issuer", "storeauth")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.reset_token_ttl", time.Hour)

	// Admin sessions idle out after 15 minutes; the storefront never idles
	// out (timeout 0), it only hits the hard session expiry. Admin accounts
	// come from the startup seed or an existing admin, never self-service.
	v.SetDefault("realms.admin.idle_timeout", 15*time.Minute)
	v.SetDefault("realms.admin.session_ttl", 12*time.Hour)
	v.SetDefault("realms.admin.required_role", "admin")
	v.SetDefault("realms.admin.default_role", "admin")
	v.SetDefault("realms.admin.allow_registration", false)

	v.SetDefault("realms.storefront.idle_timeout", time.Duration(0))
	v.SetDefault("realms.storefront.session_ttl", 30*24*time.Hour)
	v.SetDefault("realms.storefront.required_role", "")
	v.SetDefault("realms.storefront.default_role", "customer")
	v.SetDefault("realms.storefront.allow_registration", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_idle_conn", 2)
	v.SetDefault("postgres.max_open_conn", 10)

	v.SetDefault("oidc.enabled", false)
	v.SetDefault("oidc.scopes", []string{"openid", "profile", "email"})

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.name", "Administrator")
}

// IsDev reports whether the service runs in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "DEV"
}
