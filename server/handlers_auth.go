package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/printhaus/storeauth/auth"
	apperrors "github.com/printhaus/storeauth/internal/errors"
	"github.com/printhaus/storeauth/users"
)

type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
	Blocked   bool   `json:"blocked"`
	LastLogin string `json:"last_login,omitempty"`
}

func toUserResponse(u *users.User) userResponse {
	resp := userResponse{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Phone:   u.Phone,
		Role:    string(u.Role),
		Blocked: u.Blocked,
	}
	if !u.LastLogin.IsZero() {
		resp.LastLogin = u.LastLogin.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: false, Error: message})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apiResponse{Success: true})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler authenticates credentials against the realm named in the
// route and starts a session with that realm's idle policy.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		realm := r.PathValue("realm")

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := s.auth.Login(r.Context(), realm, req.Email, req.Password)
		if err != nil {
			switch {
			case apperrors.Is(err, apperrors.ErrUnknownRealm):
				writeError(w, http.StatusNotFound, "unknown realm")
			case apperrors.Is(err, apperrors.ErrUserBlocked):
				writeError(w, http.StatusForbidden, "account is blocked")
			case apperrors.Is(err, apperrors.ErrRoleForbidden):
				writeError(w, http.StatusForbidden, "insufficient role")
			default:
				writeError(w, http.StatusUnauthorized, "invalid email or password")
			}
			return
		}

		s.setSessionCookie(w, r, result.Session.ID)
		writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: map[string]any{
			"user":         toUserResponse(result.User),
			"is_admin":     result.IsAdmin,
			"access_token": result.Session.AccessToken,
			"token_expiry": result.Session.TokenExpiry.UTC(),
		}})
	}
}

// RegisterHandler creates an account and, for storefront registrations, a
// profile. A profile failure after the account write is reported to the
// caller rather than rolled back.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		realm := r.PathValue("realm")

		var req auth.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := s.auth.Register(r.Context(), realm, req)
		if err != nil {
			switch {
			case apperrors.Is(err, apperrors.ErrUnknownRealm):
				writeError(w, http.StatusNotFound, "unknown realm")
			case apperrors.Is(err, apperrors.ErrRegistrationClosed):
				writeError(w, http.StatusForbidden, "registration is closed for this realm")
			case apperrors.Is(err, apperrors.ErrEmailTaken):
				writeError(w, http.StatusConflict, "email is already registered")
			case result != nil && result.User != nil:
				// Account exists but the profile write failed
				writeError(w, http.StatusInternalServerError, "account created but profile setup failed")
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}

		writeJSON(w, http.StatusCreated, apiResponse{Success: true, Data: map[string]any{
			"user": toUserResponse(result.User),
		}})
	}
}

// LogoutHandler ends the session named by the cookie. Logging out without a
// live session still succeeds.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err == nil && cookie.Value != "" {
			if err := s.auth.Logout(r.Context(), cookie.Value); err != nil {
				s.log.Warn().Err(err).Msg("logout failed")
				writeError(w, http.StatusInternalServerError, "logout failed")
				return
			}
		}
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, apiResponse{Success: true})
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		refreshed, err := s.auth.Refresh(r.Context(), session.ID)
		if err != nil {
			s.clearSessionCookie(w)
			writeError(w, http.StatusUnauthorized, "session expired")
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: map[string]any{
			"token_expiry": refreshed.TokenExpiry.UTC(),
		}})
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		user, err := s.repos.Users.GetByID(r.Context(), session.UserID)
		if err != nil {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: map[string]any{
			"user":     toUserResponse(user),
			"realm":    session.Realm,
			"is_admin": session.IsAdmin(),
		}})
	}
}

// ActivityHandler lets clients report non-API activity such as mouse or
// keyboard input so the idle countdown resets.
func (s *Server) ActivityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// RequireSession already touched the session
		w.WriteHeader(http.StatusNoContent)
	}
}

type passwordResetRequestBody struct {
	Email string `json:"email"`
}

// PasswordResetRequestHandler always reports success so the endpoint cannot
// be used to discover which emails have accounts.
func (s *Server) PasswordResetRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passwordResetRequestBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := s.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
			s.log.Error().Err(err).Msg("password reset request failed")
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true})
	}
}

type passwordResetBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) PasswordResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passwordResetBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := s.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
			if apperrors.Is(err, apperrors.ErrInvalidResetToken) {
				writeError(w, http.StatusBadRequest, "invalid or expired reset token")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true})
	}
}

type passwordUpdateBody struct {
	NewPassword string `json:"new_password"`
}

func (s *Server) PasswordUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		var req passwordUpdateBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := s.auth.UpdatePassword(r.Context(), session.ID, req.NewPassword); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true})
	}
}

// AdminUsersHandler lists accounts for the admin dashboard.
func (s *Server) AdminUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := paginationParams(r, 100)

		list, err := s.repos.Users.List(r.Context(), offset, limit)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to list users")
			writeError(w, http.StatusInternalServerError, "failed to list users")
			return
		}

		resp := make([]userResponse, 0, len(list))
		for _, u := range list {
			resp = append(resp, toUserResponse(u))
		}
		writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: map[string]any{
			"users": resp,
		}})
	}
}

func paginationParams(r *http.Request, defaultLimit int) (offset, limit int) {
	limit = defaultLimit
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= defaultLimit {
			limit = n
		}
	}
	return offset, limit
}
