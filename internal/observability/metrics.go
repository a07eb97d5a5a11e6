package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	JobEvents        *prometheus.CounterVec
	CatalogCache     *prometheus.CounterVec
	Diagnostics      *prometheus.CounterVec

	latency *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active dashboard sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		UpstreamRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Pipio API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_ms",
			Help:      "Pipio API request latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"endpoint"}),
		JobEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_events_total",
			Help:      "Generation job events by type.",
		}, []string{"event"}),
		CatalogCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_lookups_total",
			Help:      "Catalog cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		Diagnostics: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Recorded diagnostic entries by error kind.",
		}, []string{"kind"}),
		latency: newLatencyWindow(256),
	}
}

func (m *Metrics) ObserveUpstream(endpoint, outcome string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	m.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(ms)
	m.latency.Observe(endpoint, ms)
	if outcome != "ok" {
		m.latency.ObserveOutcome(outcome)
	}
}

func (m *Metrics) ObserveCache(kind, result string) {
	m.CatalogCache.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveDiagnostic(kind string) {
	m.Diagnostics.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveJobEvent(event string) {
	m.JobEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SnapshotLatency summarises the most recent upstream latencies per endpoint.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	return m.latency.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
