package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the worker.
type Metrics struct {
	ActiveCalls        prometheus.Gauge
	CallEvents         *prometheus.CounterVec
	ToolCalls          *prometheus.CounterVec
	TranscriptMessages *prometheus.CounterVec
	RecordingBytes     prometheus.Counter
	NoisePresets       *prometheus.CounterVec
	CallDuration       prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of calls the worker is currently attached to.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Assistant tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		TranscriptMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_messages_total",
			Help:      "Transcript messages recorded by role.",
		}, []string{"role"}),
		RecordingBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_bytes_total",
			Help:      "Audio bytes captured to local recordings.",
		}),
		NoisePresets: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "noise_cancellation_selections_total",
			Help:      "Noise cancellation preset selections by preset.",
		}, []string{"preset"}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of completed calls in seconds.",
			Buckets:   []float64{15, 30, 60, 120, 300, 600, 1200, 3600},
		}),
	}
}

func (m *Metrics) ObserveCallDuration(d time.Duration) {
	m.CallDuration.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
