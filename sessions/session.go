package sessions

import (
	"time"

	"github.com/printhaus/storeauth/users"
)

// Session represents an authenticated session for a single browser/client.
// The token pair it carries is refreshed in place when the access token
// rotates; the session ID itself is stable for the session's lifetime.
type Session struct {
	ID           string     `json:"id"`                      // Unique session identifier (UUID)
	UserID       string     `json:"user_id"`                 // Authenticated user ID
	Email        string     `json:"email"`                   // User email at login time
	Role         users.Role `json:"role"`                    // Role snapshot used by the route gate
	Realm        string     `json:"realm"`                   // Realm the session was created in (admin/storefront)
	AccessToken  string     `json:"access_token,omitempty"`  // JWT access token
	RefreshToken string     `json:"refresh_token,omitempty"` // Opaque rotating refresh token
	TokenExpiry  time.Time  `json:"token_expiry"`            // When the access token expires
	CreatedAt    time.Time  `json:"created_at"`              // When the session was created
	ExpiresAt    time.Time  `json:"expires_at"`              // Hard session expiry
	LastActivity time.Time  `json:"last_activity"`           // Last qualifying activity (drives idle timeout)
}

// Expired reports whether the session has passed its hard expiry.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// IsAdmin returns true if the session was established by an admin user.
func (s *Session) IsAdmin() bool {
	return s.Role == users.RoleAdmin
}
