package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/printhaus/storeauth/auth"
	"github.com/printhaus/storeauth/internal/config"
	"github.com/printhaus/storeauth/profiles"
	profilespg "github.com/printhaus/storeauth/profiles/postgres"
	fakeprofilerepo "github.com/printhaus/storeauth/profiles/repofake"
	"github.com/printhaus/storeauth/server"
	"github.com/printhaus/storeauth/server/flowstate"
	"github.com/printhaus/storeauth/sessions"
	"github.com/printhaus/storeauth/sessions/redisrepo"
	fakesessionrepo "github.com/printhaus/storeauth/sessions/repofakes"
	"github.com/printhaus/storeauth/token"
	"github.com/printhaus/storeauth/token/refresh"
	"github.com/printhaus/storeauth/users"
	userspg "github.com/printhaus/storeauth/users/postgres"
	fakeuserrepo "github.com/printhaus/storeauth/users/repofake"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log := newLogger()

	for {
		if err := run(log, *configPath); err != nil {
			log.Fatal().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run(log zerolog.Logger, configPath string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	displayAppname(cfg.AppName)

	ctx := context.Background()

	userRepo, profileRepo, err := openUserStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	sessionRepo, err := openSessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	tokenManager, err := token.New(
		[]byte(cfg.Auth.Secret),
		cfg.Auth.Issuer,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
		refresh.NewInMemoryRepo(),
		token.WithRevocationCache(token.NewInMemoryRevokedTokenCache()),
	)
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	repos := auth.Repos{Users: userRepo, Profiles: profileRepo, Sessions: sessionRepo}
	authManager, err := auth.NewManager(
		repos,
		tokenManager,
		cfg.Realms,
		auth.WithLogger(log),
		auth.WithMailer(&auth.LogMailer{Log: log}),
		auth.WithResetTokenTTL(cfg.Auth.ResetTokenTTL),
	)
	if err != nil {
		return fmt.Errorf("auth manager: %w", err)
	}
	defer authManager.Close()

	srv, err := server.New(ctx, cfg, authManager, repos, flowstate.NewInMemoryRepo(), log)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go runCleanup(cleanupCtx, authManager, log)

	httpServer := &http.Server{Addr: cfg.Port, Handler: srv}
	go listenAndServe(log, httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// openUserStore picks Postgres when a DSN is configured, otherwise falls back
// to in-memory repos for local development.
func openUserStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (users.UserRepo, profiles.Repo, error) {
	if cfg.Postgres.DSN == "" {
		log.Warn().Msg("no postgres DSN configured, using in-memory user store")
		return fakeuserrepo.NewFakeUserRepo(), fakeprofilerepo.NewFakeProfileRepo(), nil
	}

	userRepo, err := userspg.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxIdleConn, cfg.Postgres.MaxOpenConn)
	if err != nil {
		return nil, nil, err
	}
	return userRepo, profilespg.NewRepo(userRepo.DB()), nil
}

func openSessionStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (sessions.Repo, error) {
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("no redis address configured, using in-memory session store")
		return fakesessionrepo.NewFakeSessionRepo(), nil
	}

	return redisrepo.Connect(ctx, redisrepo.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// runCleanup periodically evicts expired sessions, reset tokens and revoked
// token entries.
func runCleanup(ctx context.Context, manager *auth.Manager, log zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := manager.CleanupExpired(ctx); err != nil {
				log.Warn().Err(err).Msg("cleanup of expired auth state failed")
			}
		}
	}
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func listenAndServe(log zerolog.Logger, server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
