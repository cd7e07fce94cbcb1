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
	Turns               *prometheus.CounterVec
	TurnLatency         prometheus.Histogram
	ClassifierCalls     *prometheus.CounterVec
	ClassifierFallbacks prometheus.Counter
	ToolDispatches      *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	WSMessages          *prometheus.CounterVec
	ConversationLocks   prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end chat turn latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000},
		}),
		ClassifierCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_calls_total",
			Help:      "Intent classifier calls by result.",
		}, []string{"result"}),
		ClassifierFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_fallbacks_total",
			Help:      "Turns resolved by the keyword fallback after a classifier failure.",
		}),
		ToolDispatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_dispatches_total",
			Help:      "Tool dispatches by tool name and status.",
		}, []string{"tool", "status"}),
		PersistenceFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Turn persistence failures needing reconciliation.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ConversationLocks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversation_locks",
			Help:      "Per-conversation turn locks currently tracked.",
		}),
	}
}

func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveClassifierCall(result string) {
	if m == nil {
		return
	}
	m.ClassifierCalls.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveClassifierFallback() {
	if m == nil {
		return
	}
	m.ClassifierFallbacks.Inc()
}

func (m *Metrics) ObserveToolDispatch(tool, status string) {
	if m == nil {
		return
	}
	m.ToolDispatches.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) ObserveConversationLocks(n int) {
	if m == nil {
		return
	}
	m.ConversationLocks.Set(float64(n))
}

func (m *Metrics) ObservePersistenceFailure() {
	if m == nil {
		return
	}
	m.PersistenceFailures.Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
