package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// Runner liveness, labeled by pipeline stage.
	WorkerTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_ticks_total",
			Help: "Total runner ticks",
		},
		[]string{"stage"},
	)
	WorkerClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_claims_total",
			Help: "Total ticks that claimed and processed a submission",
		},
		[]string{"stage"},
	)
	WorkerIdleTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_idle_ticks_total",
			Help: "Total ticks that found no claimable submission",
		},
		[]string{"stage"},
	)
	WorkerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_errors_total",
			Help: "Total ticks that ended in an error",
		},
		[]string{"stage"},
	)
	WorkerReclaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_reclaimed_claims_total",
			Help: "Total expired claims routed back by the reclaimer",
		},
		[]string{"stage"},
	)

	SubmissionsTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_terminal_total",
			Help: "Submissions that reached a terminal state",
		},
		[]string{"status"},
	)

	ScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluation_score_1_10",
			Help:    "Distribution of evaluation scores ([1,10])",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)
)

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(WorkerTicksTotal)
	prometheus.MustRegister(WorkerClaimsTotal)
	prometheus.MustRegister(WorkerIdleTicksTotal)
	prometheus.MustRegister(WorkerErrorsTotal)
	prometheus.MustRegister(WorkerReclaimedTotal)
	prometheus.MustRegister(SubmissionsTerminalTotal)
	prometheus.MustRegister(ScoreHistogram)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}
