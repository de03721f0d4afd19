package server

import (
	"net/http"

	"github.com/jrsteele09/go-security-portal/internal/metrics"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageUIHandler(false), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginSubmissionHandler(false), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAdminLogin, ChainMiddleware(s.LoginPageUIHandler(true), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAdminLogin, ChainMiddleware(s.LoginSubmissionHandler(true), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	// ACCOUNT SETUP
	s.RegisterRouteHandler("GET "+RouteRegister, ChainMiddleware(s.RegisterGetHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.RegisterPostHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteActivate, ChainMiddleware(s.ActivateHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteSetInitialPassword, ChainMiddleware(s.SetInitialPasswordGetHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteSetInitialPassword, ChainMiddleware(s.SetInitialPasswordPostHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAPIValidatePassword, ChainMiddleware(s.ValidatePasswordHandler(), s.LoggingMiddleware, s.RecoverMiddleware))

	// Client routes (require an authenticated session)
	client := s.HTMLMiddleWare(s.NoStoreMiddleware, s.RequireAuthenticated())
	s.RegisterRouteHandler("GET "+RouteDashboard, ChainMiddleware(s.DashboardHandler(), client...))
	s.RegisterRouteHandler("GET "+RouteRequestService, ChainMiddleware(s.RequestServiceHandler(), client...))
	s.RegisterRouteHandler("GET "+RouteServiceRequest, ChainMiddleware(s.ServiceRequestGetHandler(), client...))
	s.RegisterRouteHandler("POST "+RouteServiceRequest, ChainMiddleware(s.ServiceRequestPostHandler(), client...))
	s.RegisterRouteHandler("GET "+RouteMyRequests, ChainMiddleware(s.MyRequestsHandler(), client...))
	s.RegisterRouteHandler("POST "+RouteWithdrawRequest, ChainMiddleware(s.WithdrawRequestHandler(), client...))
	s.RegisterRouteHandler("GET "+RouteDownloadReport, ChainMiddleware(s.DownloadReportHandler(), client...))
	s.RegisterRouteHandler("GET "+RoutePay, ChainMiddleware(s.PayHandler(), client...))
	s.RegisterRouteHandler("GET "+RoutePaymentSuccess, ChainMiddleware(s.PaymentResultHandler(true), client...))
	s.RegisterRouteHandler("POST "+RoutePaymentSuccess, ChainMiddleware(s.PaymentCallbackHandler(), s.LoggingMiddleware, s.RecoverMiddleware))
	s.RegisterRouteHandler("GET "+RoutePaymentFailure, ChainMiddleware(s.PaymentResultHandler(false), client...))
	s.RegisterRouteHandler("POST "+RoutePaymentFailure, ChainMiddleware(s.PaymentCallbackHandler(), s.LoggingMiddleware, s.RecoverMiddleware))
	s.RegisterRouteHandler("GET "+RouteProfile, ChainMiddleware(s.ProfileHandler(false), client...))
	s.RegisterRouteHandler("POST "+RouteProfile, ChainMiddleware(s.ProfileUpdateHandler(false), client...))
	s.RegisterRouteHandler("POST "+RouteProfileVerifyCode, ChainMiddleware(s.ProfileVerifyHandler(false), client...))
	s.RegisterRouteHandler("POST "+RouteProfilePassword, ChainMiddleware(s.ProfilePasswordHandler(false), client...))

	// Admin routes (require a staff session)
	staff := s.HTMLMiddleWare(s.NoStoreMiddleware, s.RequireStaff())
	s.RegisterRouteHandler("GET "+RouteAdminDashboard, ChainMiddleware(s.AdminDashboardHandler(), staff...))
	s.RegisterRouteHandler("GET "+RouteAdminRequests, ChainMiddleware(s.AdminRequestsHandler(), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminRequestStatus, ChainMiddleware(s.AdminRequestStatusHandler(), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminRequestAssign, ChainMiddleware(s.AdminRequestAssignHandler(), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminRequestReport, ChainMiddleware(s.AdminRequestReportHandler(), staff...))
	s.RegisterRouteHandler("GET "+RouteAdminServices, ChainMiddleware(s.AdminServicesHandler(), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminServices, ChainMiddleware(s.AdminServiceSaveHandler(), staff...))
	s.RegisterRouteHandler("GET "+RouteAdminService, ChainMiddleware(s.AdminServicesHandler(), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminService, ChainMiddleware(s.AdminServiceSaveHandler(), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminServiceDelete, ChainMiddleware(s.AdminServiceDeleteHandler(), staff...))
	s.RegisterRouteHandler("GET "+RouteAdminManageAdmins, ChainMiddleware(s.AdminManageAdminsHandler(), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminManageAdmins, ChainMiddleware(s.AdminCreateAdminHandler(), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminDeleteAdmin, ChainMiddleware(s.AdminDeleteAdminHandler(), staff...))
	s.RegisterRouteHandler("GET "+RouteAdminProfile, ChainMiddleware(s.ProfileHandler(true), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminProfile, ChainMiddleware(s.ProfileUpdateHandler(true), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminProfileVerify, ChainMiddleware(s.ProfileVerifyHandler(true), staff...))
	s.RegisterRouteHandler("POST "+RouteAdminProfilePassword, ChainMiddleware(s.ProfilePasswordHandler(true), staff...))

	s.RegisterRouteFunc("GET "+RouteMetrics, metrics.Handler().ServeHTTP)
	s.RegisterRouteHandler("GET "+RouteStaticCSS, ChainMiddleware(s.serveCSSHandler(), s.StaticMiddleware()...))
	s.RegisterRouteHandler("/", ChainMiddleware(s.NotFoundHandler(), s.LoggingMiddleware, s.RecoverMiddleware))
}

// NotFoundHandler renders the 404 page for anything no other route matches
func (s *Server) NotFoundHandler() http.HandlerFunc {
	tmpl := mustParsePage("not_found.html")
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, r, tmpl, http.StatusNotFound, PageData{Title: "Page not found"})
	}
}
