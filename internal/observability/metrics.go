package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the daemon.
type Metrics struct {
	SessionActive       prometheus.Gauge
	SessionEvents       *prometheus.CounterVec
	HotwordTriggers     *prometheus.CounterVec
	ClassifierErrors    prometheus.Counter
	TransientResets     prometheus.Counter
	DeadlineExpirations prometheus.Counter
	PlaybackCloseDelay  prometheus.Histogram
	SpokenAudio         prometheus.Histogram

	// Latency keeps recent per-stage session timings for the HTTP API.
	Latency *LatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Latency: NewLatencyWindow(256),
		SessionActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a speech session is active, 0 while the hotword gate is armed.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Speech session events by type.",
		}, []string{"event"}),
		HotwordTriggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hotword_triggers_total",
			Help:      "Hotword detections by hotword id.",
		}, []string{"hotword"}),
		ClassifierErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_errors_total",
			Help:      "Non-fatal wake-word classifier faults.",
		}),
		TransientResets: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transient_resets_total",
			Help:      "Transient transport resets recovered by re-arming the gate.",
		}),
		DeadlineExpirations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deadline_expirations_total",
			Help:      "Sessions terminated by the conversation deadline guard.",
		}),
		PlaybackCloseDelay: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "playback_close_delay_ms",
			Help:      "Delay between last audio chunk and speaker close in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000},
		}),
		SpokenAudio: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "spoken_audio_ms",
			Help:      "Synthesized speech duration per session in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 30000},
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.Latency.Observe(stage, d)
}

func (m *Metrics) ObservePlaybackCloseDelay(d time.Duration) {
	m.PlaybackCloseDelay.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveSpokenAudio(d time.Duration) {
	m.SpokenAudio.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
