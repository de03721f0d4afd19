package server

import (
	"github.com/jrsteele09/go-security-portal/apiclient"
	"github.com/jrsteele09/go-security-portal/guards"
)

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteHome = "/"

	// Auth Routes - Login & Logout
	RouteLogin      = apiclient.LoginPath
	RouteAdminLogin = apiclient.AdminLoginPath
	RouteLogout     = "/logout"

	// Auth Routes - Account setup
	RouteRegister           = "/register"
	RouteActivate           = "/activate/{uid}/{token}"
	RouteSetInitialPassword = "/set-initial-password/{uid}/{token}"

	// Client Routes
	RouteDashboard         = guards.DashboardPath
	RouteRequestService    = "/request-service"
	RouteServiceRequest    = "/service-request/{serviceId}"
	RouteMyRequests        = "/my-requests"
	RouteWithdrawRequest   = "/my-requests/{requestId}/withdraw"
	RouteDownloadReport    = "/my-requests/{requestId}/report"
	RoutePay               = "/pay/{requestId}"
	RoutePaymentSuccess    = "/payment/success"
	RoutePaymentFailure    = "/payment/failure"
	RouteProfile           = "/profile"
	RouteProfilePassword   = "/profile/password"
	RouteProfileVerifyCode = "/profile/verify"

	// Admin Routes
	RouteAdminDashboard       = "/admin/dashboard"
	RouteAdminRequests        = "/admin/requests"
	RouteAdminRequestStatus   = "/admin/requests/{requestId}/status"
	RouteAdminRequestAssign   = "/admin/requests/{requestId}/assign"
	RouteAdminRequestReport   = "/admin/requests/{requestId}/report"
	RouteAdminServices        = "/admin/services"
	RouteAdminService         = "/admin/services/{serviceId}"
	RouteAdminServiceDelete   = "/admin/services/{serviceId}/delete"
	RouteAdminManageAdmins    = "/admin/manage-admins"
	RouteAdminDeleteAdmin     = "/admin/manage-admins/{adminId}/delete"
	RouteAdminProfile         = "/admin/profile"
	RouteAdminProfileVerify   = "/admin/profile/verify"
	RouteAdminProfilePassword = "/admin/profile/password"

	// API Routes
	RouteAPIValidatePassword = "/api/validate-password"

	// Operational Routes
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/css/{file}"
)
