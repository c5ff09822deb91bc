package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iyou00/chatui/internal/llm"
)

// Metrics holds the Prometheus metrics for task runs and model calls. A nil
// *Metrics records nothing.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunSeconds       prometheus.Histogram
	ConcurrentRuns   prometheus.Gauge
	DroppedFires     *prometheus.CounterVec
	RoomsTotal       *prometheus.CounterVec
	CacheFallbacks   prometheus.Counter
	LLMAttemptsTotal *prometheus.CounterVec
	LLMLatency       *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatui_runs_total",
				Help: "Finished task runs by aggregate status",
			},
			[]string{"status"},
		),
		RunSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatui_run_seconds",
				Help:    "Wall time of a task run",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		ConcurrentRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatui_concurrent_runs",
				Help: "Task runs currently in progress across all tasks",
			},
		),
		DroppedFires: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatui_dropped_fires_total",
				Help: "Trigger fires dropped because the task was already running",
			},
			[]string{"task_id"},
		),
		RoomsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatui_rooms_total",
				Help: "Rooms analyzed by report status",
			},
			[]string{"status"},
		),
		CacheFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatui_cache_fallbacks_total",
				Help: "Rooms whose messages came from the local cache",
			},
		),
		LLMAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatui_llm_attempts_total",
				Help: "Model call attempts by provider and outcome kind",
			},
			[]string{"provider", "kind"},
		),
		LLMLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatui_llm_latency_seconds",
				Help:    "Model call latency per attempt",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
			},
			[]string{"provider"},
		),
	}
}

// ObserveAttempt implements llm.Observer.
func (m *Metrics) ObserveAttempt(provider string, kind llm.Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := string(kind)
	if kind == llm.KindNone {
		label = "ok"
	}
	m.LLMAttemptsTotal.WithLabelValues(provider, label).Inc()
	m.LLMLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordDroppedFire counts a fire that found its task already running.
func (m *Metrics) RecordDroppedFire(taskID string) {
	if m == nil {
		return
	}
	m.DroppedFires.WithLabelValues(taskID).Inc()
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.ConcurrentRuns.Inc()
}

func (m *Metrics) runFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ConcurrentRuns.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) recordRoom(status string, fromCache bool) {
	if m == nil {
		return
	}
	m.RoomsTotal.WithLabelValues(status).Inc()
	if fromCache {
		m.CacheFallbacks.Inc()
	}
}
