package server

func (s *Server) initRoutes() {
	api := s.APIMiddleware()
	authed := append(s.APIMiddleware(), s.RequireSession())
	adminOnly := append(s.APIMiddleware(), s.RequireSession(), s.RequireAdmin())

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), api...))
	s.RegisterRouteFunc("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), api...))

	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), api...))
	s.RegisterRouteFunc("POST "+RouteRefresh, ChainMiddleware(s.RefreshHandler(), authed...))
	s.RegisterRouteFunc("GET "+RouteMe, ChainMiddleware(s.MeHandler(), authed...))
	s.RegisterRouteFunc("POST "+RouteActivity, ChainMiddleware(s.ActivityHandler(), authed...))

	s.RegisterRouteFunc("POST "+RoutePasswordResetRequest, ChainMiddleware(s.PasswordResetRequestHandler(), api...))
	s.RegisterRouteFunc("POST "+RoutePasswordReset, ChainMiddleware(s.PasswordResetHandler(), api...))
	s.RegisterRouteFunc("POST "+RoutePasswordUpdate, ChainMiddleware(s.PasswordUpdateHandler(), authed...))

	s.RegisterRouteFunc("GET "+RouteAdminUsers, ChainMiddleware(s.AdminUsersHandler(), adminOnly...))

	if s.oidc != nil {
		s.RegisterRouteFunc("GET "+RouteOIDCLogin, ChainMiddleware(s.OIDCLoginHandler(), api...))
		s.RegisterRouteFunc("GET "+RouteOIDCCallback, ChainMiddleware(s.OIDCCallbackHandler(), api...))
	}
}
