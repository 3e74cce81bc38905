package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for monitoring checkout and payment health.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	CheckoutsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkouts_started_total",
			Help: "Total number of checkout sessions opened",
		},
	)

	OrdersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created, by payment rail",
		},
		[]string{"rail"},
	)

	OrdersSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_settled_total",
			Help: "Total number of orders reaching a terminal payment state",
		},
		[]string{"status"},
	)

	ProofSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proof_submissions_total",
			Help: "Total number of manual proof submissions, by outcome",
		},
		[]string{"outcome"},
	)

	GatewayVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_verifications_total",
			Help: "Total number of gateway verification calls, by outcome",
		},
		[]string{"outcome"},
	)
)

// RegisterMetrics registers all Prometheus metrics.
func RegisterMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(CheckoutsStartedTotal)
	prometheus.MustRegister(OrdersCreatedTotal)
	prometheus.MustRegister(OrdersSettledTotal)
	prometheus.MustRegister(ProofSubmissionsTotal)
	prometheus.MustRegister(GatewayVerificationsTotal)
}

// MetricsHandler serves the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one request's count and latency. The server's
// middleware calls this with the matched route template.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
