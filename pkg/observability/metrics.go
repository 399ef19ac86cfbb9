package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Security context metrics
	ContextBuildsTotal     *prometheus.CounterVec
	ContextBuildDuration   prometheus.Histogram
	ContextFailClosedTotal prometheus.Counter

	// Sharing access-check metrics
	AccessChecksTotal    *prometheus.CounterVec
	AccessCacheHitsTotal prometheus.Counter

	// Webhook metrics
	WebhookDeliveriesTotal *prometheus.CounterVec
	WebhookRetryQueueSize  prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	RecordsTotal     *prometheus.GaugeVec
	APIKeysActive    prometheus.Gauge
	SharingRulesOpen prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hearth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ContextBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_security_context_builds_total",
				Help: "Total number of record security context builds",
			},
			[]string{"object", "outcome"},
		),
		ContextBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hearth_security_context_build_duration_seconds",
				Help:    "Security context build duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		ContextFailClosedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hearth_security_context_fail_closed_total",
				Help: "Total number of security contexts that collapsed to fail-closed",
			},
		),

		AccessChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_sharing_access_checks_total",
				Help: "Total number of sharing access checks",
			},
			[]string{"level", "allowed"},
		),
		AccessCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hearth_sharing_access_cache_hits_total",
				Help: "Total number of sharing access-check cache hits",
			},
		),

		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_webhook_deliveries_total",
				Help: "Total number of webhook delivery attempts",
			},
			[]string{"event", "status"},
		),
		WebhookRetryQueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hearth_webhook_retry_queue_size",
				Help: "Number of webhook deliveries waiting for retry",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hearth_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hearth_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		RecordsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hearth_records_total",
				Help: "Total number of CRM records by object",
			},
			[]string{"object"},
		),
		APIKeysActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hearth_api_keys_active",
				Help: "Number of active API keys",
			},
		),
		SharingRulesOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hearth_sharing_rules_total",
				Help: "Number of configured sharing rules",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ContextBuildsTotal,
		m.ContextBuildDuration,
		m.ContextFailClosedTotal,
		m.AccessChecksTotal,
		m.AccessCacheHitsTotal,
		m.WebhookDeliveriesTotal,
		m.WebhookRetryQueueSize,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.RecordsTotal,
		m.APIKeysActive,
		m.SharingRulesOpen,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
