// Package metrics provides Prometheus metrics collection shared across the
// janitor admin API and its background workers.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Queue / scheduling metrics
	QueueDepth       *prometheus.GaugeVec
	ScheduleOffset   *prometheus.HistogramVec
	SweepDuration    *prometheus.HistogramVec
	PublishOutcomes  *prometheus.CounterVec
	RateLimitBlocked *prometheus.CounterVec

	// Database metrics
	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "janitor_queue_depth",
				Help: "Number of queue items per bucket",
			},
			[]string{"bucket"},
		),
		ScheduleOffset: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "janitor_schedule_offset_seconds",
				Help:    "Scheduling offset added to a candidate's estimated duration",
				Buckets: []float64{0, 60, 300, 900, 1800, 3600, 7200, 14400},
			},
			[]string{"campaign"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "janitor_sweep_duration_seconds",
				Help:    "Duration of a scheduler or ingress sweep",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
			[]string{"sweep"},
		),
		PublishOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "janitor_publish_outcomes_total",
				Help: "Publish attempts grouped by resulting state",
			},
			[]string{"mode", "outcome"},
		),
		RateLimitBlocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "janitor_rate_limit_blocked_total",
				Help: "Publish attempts blocked by a rate limiter or host back-off gate",
			},
			[]string{"reason"},
		),

		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		DatabaseConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "database_connections_open",
				Help: "Current number of open database connections",
			},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.QueueDepth,
			m.ScheduleOffset,
			m.SweepDuration,
			m.PublishOutcomes,
			m.RateLimitBlocked,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
			m.DatabaseConnectionsOpen,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", Environment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error.
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// SetQueueDepth records the current number of queue items in a bucket.
func (m *Metrics) SetQueueDepth(bucket string, depth int) {
	m.QueueDepth.WithLabelValues(bucket).Set(float64(depth))
}

// RecordScheduleOffset records the offset a scheduling pass added for a campaign.
func (m *Metrics) RecordScheduleOffset(campaign string, offset time.Duration) {
	m.ScheduleOffset.WithLabelValues(campaign).Observe(offset.Seconds())
}

// RecordSweep records the duration of a scheduler or ingress sweep.
func (m *Metrics) RecordSweep(sweep string, duration time.Duration) {
	m.SweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}

// RecordPublishOutcome records the terminal state of a publish attempt.
func (m *Metrics) RecordPublishOutcome(mode, outcome string) {
	m.PublishOutcomes.WithLabelValues(mode, outcome).Inc()
}

// RecordRateLimitBlocked records a publish attempt blocked by rate limiting.
func (m *Metrics) RecordRateLimitBlocked(reason string) {
	m.RateLimitBlocked.WithLabelValues(reason).Inc()
}

// RecordDatabaseQuery records a database query.
func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetDatabaseConnections sets the number of open database connections.
func (m *Metrics) SetDatabaseConnections(count int) {
	m.DatabaseConnectionsOpen.Set(float64(count))
}

// UpdateUptime updates the service uptime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter.
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter.
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// Environment returns the deployment environment name, read from JANITOR_ENV
// and defaulting to "development".
func Environment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("JANITOR_ENV")))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
//   - production: disabled unless explicitly enabled via METRICS_ENABLED
//   - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return Environment() != "production"
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance, used by components that don't thread an explicit
// *Metrics through their constructor (e.g. package-level HTTP middleware).
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
