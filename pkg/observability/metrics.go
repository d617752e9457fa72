package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the authorization core.
type Metrics struct {
	// HTTP metrics for the administrative surface.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Directory client metrics.
	DirectoryRequestsTotal   *prometheus.CounterVec
	DirectoryRequestDuration *prometheus.HistogramVec

	// Guard metrics.
	GuardDecisionsTotal *prometheus.CounterVec

	// Provisioning and reconciliation metrics.
	ProvisionStepsTotal  *prometheus.CounterVec
	ReconcileRunsTotal   *prometheus.CounterVec
	ReconcileMutations   prometheus.Counter
	ReconcileDuration    prometheus.Histogram

	// Membership cache metrics.
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all instruments on the given registry.
// A nil registry allocates a private one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authcore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		DirectoryRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_directory_requests_total",
				Help: "Total number of Directory API calls",
			},
			[]string{"op", "status"},
		),
		DirectoryRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authcore_directory_request_duration_seconds",
				Help:    "Directory API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		GuardDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_guard_decisions_total",
				Help: "Authorization guard decisions by outcome",
			},
			[]string{"check", "outcome"},
		),
		ProvisionStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_provision_steps_total",
				Help: "Workspace provisioning steps by kind and result",
			},
			[]string{"step", "result"},
		),
		ReconcileRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_reconcile_runs_total",
				Help: "Reconciler runs by result",
			},
			[]string{"result"},
		),
		ReconcileMutations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_reconcile_mutations_total",
				Help: "Structural elements created or updated by the reconciler",
			},
		),
		ReconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "authcore_reconcile_duration_seconds",
				Help:    "Reconciler run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_cache_hits_total",
				Help: "Membership cache hits by tier",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_cache_misses_total",
				Help: "Membership cache misses by tier",
			},
			[]string{"tier"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DirectoryRequestsTotal,
		m.DirectoryRequestDuration,
		m.GuardDecisionsTotal,
		m.ProvisionStepsTotal,
		m.ReconcileRunsTotal,
		m.ReconcileMutations,
		m.ReconcileDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status for HTTP metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTPMiddleware instruments a handler with request count and duration.
// The path label uses the route template, not the raw URL, to bound
// cardinality; callers pass it per-route.
func (m *Metrics) HTTPMiddleware(routeTemplate string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, routeTemplate, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, routeTemplate).Observe(time.Since(start).Seconds())
	})
}
