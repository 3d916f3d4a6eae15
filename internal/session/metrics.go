package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSamplesTotal           = "session_samples_total"
	MetricSpeedTerminationsTotal = "session_speed_terminations_total"
	MetricVerdictsTotal          = "session_verdicts_total"
	MetricSessionsTotal          = "sessions_total"
	MetricActiveSessions         = "sessions_active"
)

// Metrics contains Prometheus metrics for recording sessions.
// All operations are thread-safe.
type Metrics struct {
	samples           *prometheus.CounterVec
	speedTerminations *prometheus.CounterVec
	verdicts          *prometheus.CounterVec
	sessions          *prometheus.CounterVec
	active            prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSamplesTotal,
				Help: "Total number of location samples by filter result",
			},
			[]string{"result"},
		),
		speedTerminations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSpeedTerminationsTotal,
				Help: "Total number of sessions ended by the speed limit, by mode",
			},
			[]string{"mode"},
		),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricVerdictsTotal,
				Help: "Total number of loop validation verdicts by reason",
			},
			[]string{"reason"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSessionsTotal,
				Help: "Total number of ended sessions by mode and status",
			},
			[]string{"mode", "status"},
		),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricActiveSessions,
			Help: "Number of sessions currently recording",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncSamples increments the sample counter.
// result: "accepted" or a reject reason label
func (m *Metrics) IncSamples(result string) {
	m.samples.WithLabelValues(result).Inc()
}

// IncSpeedTerminations increments the speed termination counter for mode.
func (m *Metrics) IncSpeedTerminations(mode string) {
	m.speedTerminations.WithLabelValues(mode).Inc()
}

// IncVerdicts increments the verdict counter for reason.
func (m *Metrics) IncVerdicts(reason string) {
	m.verdicts.WithLabelValues(reason).Inc()
}

// ObserveSessionStarted bumps the active session gauge.
func (m *Metrics) ObserveSessionStarted() {
	m.active.Inc()
}

// ObserveSessionEnded records an ended session and drops the active gauge.
func (m *Metrics) ObserveSessionEnded(mode Mode, status Status) {
	m.active.Dec()
	m.sessions.WithLabelValues(mode.String(), string(status)).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.samples,
		m.speedTerminations,
		m.verdicts,
		m.sessions,
		m.active,
	}
}
