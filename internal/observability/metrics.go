package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query events counted alongside outcomes.
const (
	EventSuperseded      = "superseded"
	EventCompletionRetry = "completion_retry"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	Queries           *prometheus.CounterVec
	QueryEvents       *prometheus.CounterVec
	CompletionLatency prometheus.Histogram
	WSMessages        *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	SpeechSegments    prometheus.Counter

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open panel sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		Queries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Assistant queries by outcome.",
		}, []string{"outcome"}),
		QueryEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_events_total",
			Help:      "Supersessions and completion retries.",
		}, []string{"event"}),
		CompletionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Chat-completion round trip in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 1500, 2500, 4000, 8000, 15000},
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		SpeechSegments: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_segments_total",
			Help:      "Speech segments handed to a synthesizer.",
		}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) ObserveCompletionLatency(d time.Duration) {
	m.CompletionLatency.Observe(float64(d.Milliseconds()))
	m.ObserveStage(StageCompletion, d)
}

// ObserveStage records d in the rolling per-stage latency window.
func (m *Metrics) ObserveStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveQueryEvent(event string) {
	if m == nil {
		return
	}
	m.QueryEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	return m.stages.snapshot()
}

func (m *Metrics) ResetStages() {
	m.stages.reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
