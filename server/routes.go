package server

const (
	RouteRegister     = "/register"
	RouteLogin        = "/login"
	RouteTokenRefresh = "/token/refresh"
	RouteLogout       = "/logout"
	RouteProtected    = "/protected"
)

func (s *Server) initRoutes() {
	if s.registrar != nil {
		s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	}

	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteTokenRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteProtected, ChainMiddleware(s.ProtectedHandler(), s.APIMiddleware(s.RequireAccessToken)...))
}
