// Package metrics provides Prometheus instrumentation for the what-if engine.
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
	// ModificationsTotal counts ledger mutations, partitioned by kind and
	// operation (add, update, remove, clear).
	ModificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatif_modifications_total",
		Help: "Total ledger mutations",
	}, []string{"kind", "op"})

	// LedgerSize tracks the current number of modifications in the ledger.
	LedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whatif_ledger_size",
		Help: "Number of modifications currently in the ledger",
	})

	// ApplyLatency tracks remote calculation round-trip latency.
	ApplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whatif_apply_latency_seconds",
		Help:    "Remote calculation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// StaleResponsesTotal counts remote responses discarded by the
	// request-counter check.
	StaleResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatif_stale_responses_total",
		Help: "Remote calculation responses discarded as stale",
	})

	// LockRejectionsTotal counts modifications rejected by the
	// remove-all subcategory lock.
	LockRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatif_lock_rejections_total",
		Help: "Modifications rejected by the subcategory lock",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whatif_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatif_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "whatif_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
