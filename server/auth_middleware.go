package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/printhaus/storeauth/internal/errors"
	"github.com/printhaus/storeauth/sessions"
	"github.com/printhaus/storeauth/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the authenticated session
	ContextKeySession ContextKey = "session"
)

// SessionFromContext returns the session injected by RequireSession.
func SessionFromContext(ctx context.Context) (*sessions.Session, bool) {
	session, ok := ctx.Value(ContextKeySession).(*sessions.Session)
	return session, ok
}

// RequireSession is middleware that authenticates the request, either by
// session cookie or by bearer access token. Every cookie-authenticated
// request counts as activity and resets the idle countdown, and access
// tokens past their expiry are rotated transparently. Bearer requests carry
// no session: the token itself is validated, including its revocation state.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil {
				session, err := s.bearerSession(r)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "authentication required")
					return
				}
				ctx := context.WithValue(r.Context(), ContextKeySession, session)
				next(w, r.WithContext(ctx))
				return
			}

			session, err := s.auth.GetSession(r.Context(), cookie.Value)
			if err != nil {
				s.clearSessionCookie(w)
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			// Transparent token refresh keeps the session's pair current
			if session.TokenExpiry.Before(time.Now()) {
				refreshed, err := s.auth.Refresh(r.Context(), session.ID)
				if err != nil {
					s.clearSessionCookie(w)
					writeError(w, http.StatusUnauthorized, "session expired")
					return
				}
				session = refreshed
			}

			if err := s.auth.Touch(r.Context(), session.ID); err != nil {
				s.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to touch session")
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			next(w, r.WithContext(ctx))
		}
	}
}

// bearerSession authenticates an Authorization: Bearer access token.
func (s *Server) bearerSession(r *http.Request) (*sessions.Session, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil, apperrors.ErrInvalidToken
	}
	return s.auth.AuthenticateAccessToken(r.Context(), raw)
}

// RequireAdmin is the role gate for admin-only routes. It must be chained
// after RequireSession.
func (s *Server) RequireAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return s.RequireRole(users.RoleAdmin)
}

// RequireRole rejects sessions whose role snapshot does not match.
func (s *Server) RequireRole(role users.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if session.Role != role {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next(w, r)
		}
	}
}
