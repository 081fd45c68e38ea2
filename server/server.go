package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/printhaus/storeauth/auth"
	"github.com/printhaus/storeauth/internal/config"
	"github.com/printhaus/storeauth/server/flowstate"
)

// OidcConfig bundles the provider handles for federated login.
type OidcConfig struct {
	OidcProvider *oidc.Provider
	OAuth2Config *oauth2.Config
	OidcVerifier *oidc.IDTokenVerifier
}

type Server struct {
	env       string // Environment (e.g., "DEV", "production")
	mux       *http.ServeMux
	routes    []string
	config    *config.Config
	auth      *auth.Manager
	repos     auth.Repos
	flowState flowstate.Repo
	oidc      *OidcConfig // nil when federated login is disabled
	log       zerolog.Logger
}

func New(ctx context.Context, cfg *config.Config, authManager *auth.Manager, repos auth.Repos, flowStateRepo flowstate.Repo, log zerolog.Logger) (*Server, error) {
	s := &Server{
		env:       cfg.Env,
		mux:       http.NewServeMux(),
		config:    cfg,
		auth:      authManager,
		repos:     repos,
		flowState: flowStateRepo,
		log:       log,
	}

	if cfg.OIDC.Enabled {
		provider, err := oidc.NewProvider(ctx, cfg.OIDC.Issuer)
		if err != nil {
			return nil, fmt.Errorf("[Server New] failed to initialise OIDC provider: %w", err)
		}
		oauth2Config := &oauth2.Config{
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       cfg.OIDC.Scopes,
		}
		s.oidc = &OidcConfig{
			OidcProvider: provider,
			OAuth2Config: oauth2Config,
			OidcVerifier: provider.Verifier(&oidc.Config{ClientID: cfg.OIDC.ClientID}),
		}
	}

	// Bootstrap: ensure the initial admin account exists
	if err := s.SeedAdmin(ctx); err != nil {
		return nil, fmt.Errorf("[Server New] failed to seed admin account: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	s.log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
