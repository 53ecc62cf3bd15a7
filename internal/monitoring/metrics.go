package monitoring

import (
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds pipeline counters and their Prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	FramesProcessed atomic.Uint64
	FramesRejected  atomic.Uint64
	ActuatorErrors  atomic.Uint64
	JournalDropped  atomic.Uint64
	LanesOn         atomic.Uint64
	LastDtMs        atomic.Uint64
	lastLatencyBits atomic.Uint64

	fires    *prometheus.CounterVec
	latency  prometheus.Histogram
	registry *prometheus.Registry
}

// NewMetrics creates a Metrics instance with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lanespray",
				Name:      "lane_fire_events_total",
				Help:      "Idle to firing transitions per lane.",
			},
			[]string{"lane"},
		),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lanespray",
			Name:      "frame_process_seconds",
			Help:      "Time from frame receipt to actuator return.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.fires, m.latency)

	gauges := []struct {
		name, help string
		v          *atomic.Uint64
	}{
		{"lanespray_frames_processed_total", "Frames that reached the actuator stage.", &m.FramesProcessed},
		{"lanespray_frames_rejected_total", "Frames rejected for invalid geometry.", &m.FramesRejected},
		{"lanespray_actuator_errors_total", "Actuator apply calls that returned an error.", &m.ActuatorErrors},
		{"lanespray_journal_dropped_total", "Journal events dropped because the writer fell behind.", &m.JournalDropped},
		{"lanespray_lanes_on", "Lanes commanded on by the last frame.", &m.LanesOn},
		{"lanespray_last_dt_ms", "Elapsed milliseconds fed to the controller on the last frame.", &m.LastDtMs},
	}
	for _, g := range gauges {
		v := g.v
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(v.Load()) },
		))
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lanespray_last_frame_latency_seconds",
			Help: "Processing latency of the most recent frame.",
		},
		func() float64 { return math.Float64frombits(m.lastLatencyBits.Load()) },
	))
}

// ObserveFrame records one processed frame.
func (m *Metrics) ObserveFrame(latency time.Duration, dtMs uint32, states []bool) {
	if m == nil {
		return
	}
	m.FramesProcessed.Add(1)
	m.LastDtMs.Store(uint64(dtMs))
	var on uint64
	for _, s := range states {
		if s {
			on++
		}
	}
	m.LanesOn.Store(on)
	m.latency.Observe(latency.Seconds())
	m.lastLatencyBits.Store(math.Float64bits(latency.Seconds()))
}

// ObserveFire counts a lane transition from off to on.
func (m *Metrics) ObserveFire(lane int) {
	if m == nil {
		return
	}
	m.fires.WithLabelValues(strconv.Itoa(lane)).Inc()
}

// ObserveRejected counts a frame that failed validation.
func (m *Metrics) ObserveRejected() {
	if m == nil {
		return
	}
	m.FramesRejected.Add(1)
}

// ObserveActuatorError counts a failed actuator apply.
func (m *Metrics) ObserveActuatorError() {
	if m == nil {
		return
	}
	m.ActuatorErrors.Add(1)
}

// ObserveJournalDrop counts an event the journal could not queue.
func (m *Metrics) ObserveJournalDrop() {
	if m == nil {
		return
	}
	m.JournalDropped.Add(1)
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
