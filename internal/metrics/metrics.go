package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secportal_token_refreshes_total",
		Help: "Token refresh calls made against the backend, by outcome",
	}, []string{"outcome"})

	sessionTeardowns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secportal_session_teardowns_total",
		Help: "Sessions cleared because a 401 could not be recovered, by reason",
	}, []string{"reason"})

	guardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secportal_guard_decisions_total",
		Help: "Route guard evaluations, by guard and decision",
	}, []string{"guard", "decision"})

	portalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secportal_http_requests_total",
		Help: "Portal HTTP requests, by method and status code",
	}, []string{"method", "code"})
)

func TokenRefresh(outcome string) {
	tokenRefreshes.WithLabelValues(outcome).Inc()
}

func SessionTeardown(reason string) {
	sessionTeardowns.WithLabelValues(reason).Inc()
}

func GuardDecision(guard, decision string) {
	guardDecisions.WithLabelValues(guard, decision).Inc()
}

func PortalRequest(method string, code int) {
	portalRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
