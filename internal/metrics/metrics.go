package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics interface for dependency injection
type Metrics interface {
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)
	RecordDispatch(status string)
	RecordEventIngested(platform, status string)
	RecordFetch(platform string, duration time.Duration)
	RecordFusionEmitted(tenantID string)
	RecordDelivery(channel, status string)
	SetDLQDepth(topic string, depth float64)
	RecordDBQuery(operation, status string)
	SetDBConnectionsActive(count float64)
	Handler() http.Handler
}

// NoOpMetrics provides a no-op implementation
type NoOpMetrics struct{}

func (m *NoOpMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
}
func (m *NoOpMetrics) RecordDispatch(status string)                          {}
func (m *NoOpMetrics) RecordEventIngested(platform, status string)           {}
func (m *NoOpMetrics) RecordFetch(platform string, duration time.Duration)   {}
func (m *NoOpMetrics) RecordFusionEmitted(tenantID string)                   {}
func (m *NoOpMetrics) RecordDelivery(channel, status string)                 {}
func (m *NoOpMetrics) SetDLQDepth(topic string, depth float64)               {}
func (m *NoOpMetrics) RecordDBQuery(operation, status string)                {}
func (m *NoOpMetrics) SetDBConnectionsActive(count float64)                  {}
func (m *NoOpMetrics) Handler() http.Handler                                 { return http.NotFoundHandler() }

// PrometheusMetrics implements Metrics backed by a private registry so tests
// can construct isolated instances.
type PrometheusMetrics struct {
	registry      *prometheus.Registry
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	dispatches    *prometheus.CounterVec
	ingested      *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fusions       *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	dlqDepth      *prometheus.GaugeVec
	dbQueries     *prometheus.CounterVec
	dbConns       prometheus.Gauge
}

// NewPrometheus creates a Prometheus-backed metrics instance.
func NewPrometheus() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	m := &PrometheusMetrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventfuse",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, endpoint and status",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eventfuse",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
		}, []string{"method", "endpoint"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventfuse",
			Name:      "dispatches_total",
			Help:      "Dispatcher per-source outcomes",
		}, []string{"status"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventfuse",
			Name:      "events_ingested_total",
			Help:      "Normalized events by platform and status",
		}, []string{"platform", "status"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eventfuse",
			Name:      "fetch_duration_seconds",
			Help:      "Adapter fetch latency by platform",
		}, []string{"platform"}),
		fusions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventfuse",
			Name:      "fused_events_total",
			Help:      "Fused events emitted by tenant",
		}, []string{"tenant_id"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventfuse",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by channel and status",
		}, []string{"channel", "status"}),
		dlqDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eventfuse",
			Name:      "dlq_depth",
			Help:      "Messages currently held per DLQ topic",
		}, []string{"topic"}),
		dbQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventfuse",
			Name:      "db_queries_total",
			Help:      "Database queries by operation and status",
		}, []string{"operation", "status"}),
		dbConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventfuse",
			Name:      "db_connections_active",
			Help:      "Active database connections",
		}),
	}

	reg.MustRegister(
		m.httpRequests, m.httpDuration, m.dispatches, m.ingested,
		m.fetchDuration, m.fusions, m.deliveries, m.dlqDepth,
		m.dbQueries, m.dbConns,
	)

	return m
}

func (m *PrometheusMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, endpoint, statusText(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordDispatch(status string) {
	m.dispatches.WithLabelValues(status).Inc()
}

func (m *PrometheusMetrics) RecordEventIngested(platform, status string) {
	m.ingested.WithLabelValues(platform, status).Inc()
}

func (m *PrometheusMetrics) RecordFetch(platform string, duration time.Duration) {
	m.fetchDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordFusionEmitted(tenantID string) {
	m.fusions.WithLabelValues(tenantID).Inc()
}

func (m *PrometheusMetrics) RecordDelivery(channel, status string) {
	m.deliveries.WithLabelValues(channel, status).Inc()
}

func (m *PrometheusMetrics) SetDLQDepth(topic string, depth float64) {
	m.dlqDepth.WithLabelValues(topic).Set(depth)
}

func (m *PrometheusMetrics) RecordDBQuery(operation, status string) {
	m.dbQueries.WithLabelValues(operation, status).Inc()
}

func (m *PrometheusMetrics) SetDBConnectionsActive(count float64) {
	m.dbConns.Set(count)
}

func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Global metrics instance
var globalMetrics Metrics = &NoOpMetrics{}

// Init installs a Prometheus-backed global instance
func Init() {
	globalMetrics = NewPrometheus()
}

// Handler returns the metrics handler
func Handler() http.Handler {
	return globalMetrics.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	globalMetrics.RecordHTTPRequest(method, endpoint, statusCode, duration)
}

// RecordDispatch records a dispatcher per-source outcome
func RecordDispatch(status string) {
	globalMetrics.RecordDispatch(status)
}

// RecordEventIngested records a normalized event outcome
func RecordEventIngested(platform, status string) {
	globalMetrics.RecordEventIngested(platform, status)
}

// RecordFetch records an adapter fetch duration
func RecordFetch(platform string, duration time.Duration) {
	globalMetrics.RecordFetch(platform, duration)
}

// RecordFusionEmitted records an emitted fused event
func RecordFusionEmitted(tenantID string) {
	globalMetrics.RecordFusionEmitted(tenantID)
}

// RecordDelivery records a channel delivery outcome
func RecordDelivery(channel, status string) {
	globalMetrics.RecordDelivery(channel, status)
}

// SetDLQDepth sets the current depth of a DLQ topic
func SetDLQDepth(topic string, depth float64) {
	globalMetrics.SetDLQDepth(topic, depth)
}

// RecordDBQuery records database query metrics
func RecordDBQuery(operation, status string) {
	globalMetrics.RecordDBQuery(operation, status)
}

// SetDBConnectionsActive sets the number of active database connections
func SetDBConnectionsActive(count float64) {
	globalMetrics.SetDBConnectionsActive(count)
}
