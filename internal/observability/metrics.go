package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the POS engine.
type Metrics struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	syncSales           *prometheus.CounterVec
	syncBatchSize       prometheus.Histogram
	conflictResolutions *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pos_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_pos_http_request_duration_seconds",
		Help:    "HTTP request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	syncSales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pos_sync_sales_total",
		Help: "Offline sales processed by outcome and failure category.",
	}, []string{"outcome", "category"})
	batchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "odyssey_pos_sync_batch_size",
		Help:    "Number of sales per offline sync batch.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pos_conflict_resolutions_total",
		Help: "Resolved review-required sales by action.",
	}, []string{"action"})
	registry.MustRegister(requests, duration, syncSales, batchSize, conflicts)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		syncSales:           syncSales,
		syncBatchSize:       batchSize,
		conflictResolutions: conflicts,
	}
}

// ObserveSyncBatch records the size of one sync batch.
func (m *Metrics) ObserveSyncBatch(size int) {
	if m == nil {
		return
	}
	m.syncBatchSize.Observe(float64(size))
}

// ObserveSyncSale counts one processed offline sale. category is empty on success.
func (m *Metrics) ObserveSyncSale(outcome, category string) {
	if m == nil {
		return
	}
	if category == "" {
		category = "none"
	}
	m.syncSales.WithLabelValues(outcome, category).Inc()
}

// ObserveConflictResolution counts one conflict resolution.
func (m *Metrics) ObserveConflictResolution(action string) {
	if m == nil {
		return
	}
	m.conflictResolutions.WithLabelValues(action).Inc()
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
