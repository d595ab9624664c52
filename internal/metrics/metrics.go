// Package metrics exposes the relay's Prometheus instrumentation: HTTP
// request counters, session/peer gauges, pending-route timing, and tool
// call outcomes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btcp_requests_total",
			Help: "Total number of HTTP requests handled by the relay",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "btcp_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "btcp_sessions_active",
			Help: "Number of live sessions",
		},
	)

	PeersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "btcp_peers_active",
			Help: "Number of attached peers by role",
		},
		[]string{"role"},
	)

	PendingRoutes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "btcp_pending_routes",
			Help: "Number of in-flight forwarded requests awaiting a provider response",
		},
	)

	ForwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "btcp_forward_duration_seconds",
			Help:    "Time from forwarding a caller request to the provider to its resolution",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "outcome"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btcp_tool_calls_total",
			Help: "Total number of tools/call invocations",
		},
		[]string{"tool", "status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code while
// still allowing flush-through for SSE.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher so the /events SSE stream keeps working
// when wrapped by this middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request count and latency for every HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath collapses high-cardinality paths to keep label
// cardinality bounded.
func normalizePath(path string) string {
	switch path {
	case "/health", "/sessions", "/events", "/message", "/metrics":
		return path
	default:
		return "other"
	}
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordToolCall(tool, status string) {
	ToolCalls.WithLabelValues(tool, status).Inc()
}

func RecordForward(method, outcome string, durationSeconds float64) {
	ForwardDuration.WithLabelValues(method, outcome).Observe(durationSeconds)
}
