// Package metrics exposes station counters and the latest engine snapshot
// in Prometheus text format.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cbf-labs/anacase/internal/counting"
)

// Metrics holds driver-loop counters and the last published snapshot.
type Metrics struct {
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	SourceErrors    atomic.Uint64
	JournalErrors   atomic.Uint64
	StepLatencyUs   atomic.Uint64

	mu   sync.RWMutex
	last counting.Snapshot

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

// Observe records the snapshot produced by the latest cycle.
func (m *Metrics) Observe(s counting.Snapshot) {
	m.FramesProcessed.Add(1)
	m.mu.Lock()
	m.last = s
	m.mu.Unlock()
}

// ObserveStep records how long one engine step took.
func (m *Metrics) ObserveStep(d time.Duration) {
	m.StepLatencyUs.Store(uint64(d.Microseconds()))
}

// Last returns the most recently observed snapshot.
func (m *Metrics) Last() counting.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Metrics) snapshotGauge(f func(counting.Snapshot) float64) func() float64 {
	return func() float64 {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return f(m.last)
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (m *Metrics) register() {
	counters := []struct {
		name, help string
		v          *atomic.Uint64
	}{
		{"anacase_frames_read_total", "Frames read from the frame source", &m.FramesRead},
		{"anacase_frames_processed_total", "Frames stepped through the engine", &m.FramesProcessed},
		{"anacase_source_errors_total", "Frame source read errors", &m.SourceErrors},
		{"anacase_journal_errors_total", "Audit journal write errors", &m.JournalErrors},
		{"anacase_step_latency_us", "Duration of the last engine step in microseconds", &m.StepLatencyUs},
	}
	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	gauges := []struct {
		name, help string
		f          func(counting.Snapshot) float64
	}{
		{"anacase_count", "Current counter value", func(s counting.Snapshot) float64 { return float64(s.Count) }},
		{"anacase_sampled", "Reviews opened in the current sampling generation", func(s counting.Snapshot) float64 { return float64(s.Sampled) }},
		{"anacase_sampled_percent", "Sampled as a percentage of the count", func(s counting.Snapshot) float64 { return s.Percentage }},
		{"anacase_rolling_60_percent", "Reviews per count over the last 60 minutes", func(s counting.Snapshot) float64 { return s.Rolling60 }},
		{"anacase_pending_samples", "Sample ids not yet reached in this generation", func(s counting.Snapshot) float64 { return float64(s.PendingSamples) }},
		{"anacase_sample_generation", "Sampling generation", func(s counting.Snapshot) float64 { return float64(s.Generation) }},
		{"anacase_alarm_active", "Review alarm active (0 or 1)", func(s counting.Snapshot) float64 { return boolFloat(s.AlarmActive) }},
		{"anacase_reviews_opened_total", "Reviews opened", func(s counting.Snapshot) float64 { return float64(s.Opened) }},
		{"anacase_reviews_acknowledged_total", "Reviews closed by acknowledgement", func(s counting.Snapshot) float64 { return float64(s.Acknowledged) }},
		{"anacase_reviews_timed_out_total", "Reviews closed by timeout", func(s counting.Snapshot) float64 { return float64(s.TimedOut) }},
		{"anacase_reviews_deferred_total", "Sampled counts reached while an alarm was active", func(s counting.Snapshot) float64 { return float64(s.Deferred) }},
		{"anacase_skipped_detections_total", "Detections rejected as degenerate", func(s counting.Snapshot) float64 { return float64(s.Skipped) }},
		{"anacase_suppressed_crossings_total", "Crossings suppressed by the minimum interval", func(s counting.Snapshot) float64 { return float64(s.Suppressed) }},
		{"anacase_actuator_failures_total", "Cycles where an actuator write failed", func(s counting.Snapshot) float64 { return float64(s.ActuatorFailures) }},
		{"anacase_dropped_events_total", "Events dropped for slow subscribers", func(s counting.Snapshot) float64 { return float64(s.DroppedEvents) }},
	}
	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			m.snapshotGauge(g.f),
		))
	}
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
