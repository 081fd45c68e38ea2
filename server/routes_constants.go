package server

// Route paths
const (
	RouteHealth = "/healthz"

	RouteLogin    = "/api/{realm}/auth/login"
	RouteRegister = "/api/{realm}/auth/register"

	RouteLogout   = "/api/auth/logout"
	RouteRefresh  = "/api/auth/refresh"
	RouteMe       = "/api/auth/me"
	RouteActivity = "/api/auth/activity"

	RoutePasswordResetRequest = "/api/auth/password/reset-request"
	RoutePasswordReset        = "/api/auth/password/reset"
	RoutePasswordUpdate       = "/api/auth/password/update"

	RouteAdminUsers = "/api/admin/users"

	RouteOIDCLogin    = "/auth/oidc/login"
	RouteOIDCCallback = "/auth/oidc/callback"
)

// SessionCookieName is the cookie carrying the session ID.
const SessionCookieName = "session_id"
