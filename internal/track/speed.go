package track

import (
	"fmt"
	"math"
	"time"
)

// SpeedKind is the coarse state of the speed monitor.
type SpeedKind int

const (
	// SpeedNormal means movement is within the hard limit.
	SpeedNormal SpeedKind = iota
	// SpeedWarning means the hard limit is exceeded and a countdown is running.
	SpeedWarning
	// SpeedTerminated means the countdown expired. It is absorbing until Reset.
	SpeedTerminated
)

// String returns the label used in logs and metrics.
func (k SpeedKind) String() string {
	switch k {
	case SpeedNormal:
		return "normal"
	case SpeedWarning:
		return "warning"
	case SpeedTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by its label.
func (k SpeedKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// SpeedState is the monitor state. SecondsRemaining is only meaningful for SpeedWarning.
type SpeedState struct {
	Kind             SpeedKind `json:"kind"`
	SecondsRemaining int       `json:"seconds_remaining,omitempty"`
}

// SpeedPolicy parameterizes the monitor.
type SpeedPolicy struct {
	Name string
	// SoftLimitKmh surfaces an advisory above it. Zero disables the advisory.
	SoftLimitKmh float64
	// HardLimitKmh starts the countdown above it.
	HardLimitKmh float64
	// GracePeriod is the countdown length. Zero terminates on the first breach.
	GracePeriod time.Duration
}

// ClaimingPolicy is used while walking a territory loop: an advisory above
// 15 km/h and an immediate stop above 30 km/h.
func ClaimingPolicy() SpeedPolicy {
	return SpeedPolicy{
		Name:         "claiming",
		SoftLimitKmh: 15,
		HardLimitKmh: 30,
		GracePeriod:  0,
	}
}

// ExplorationPolicy is used for distance tracking: a 10 second countdown above 30 km/h.
func ExplorationPolicy() SpeedPolicy {
	return SpeedPolicy{
		Name:         "exploration",
		HardLimitKmh: 30,
		GracePeriod:  10 * time.Second,
	}
}

// SpeedReading is the outcome of feeding the monitor a sample or a tick.
type SpeedReading struct {
	// SpeedKmh is the evaluated speed; zero when it could not be determined.
	SpeedKmh float64    `json:"speed_kmh"`
	State    SpeedState `json:"state"`
	// Message is a user-facing advisory, empty when there is nothing to say.
	Message string `json:"message,omitempty"`
	// Changed is true when the state kind or the countdown changed.
	Changed bool `json:"changed"`
}

// SpeedMonitor detects vehicle-assisted movement.
type SpeedMonitor struct {
	policy    SpeedPolicy
	state     SpeedState
	deadline  time.Time
	lastSpeed float64
}

// NewSpeedMonitor creates a monitor in the Normal state.
func NewSpeedMonitor(policy SpeedPolicy) *SpeedMonitor {
	return &SpeedMonitor{policy: policy}
}

// Policy returns the monitor's policy.
func (m *SpeedMonitor) Policy() SpeedPolicy {
	return m.policy
}

// State returns the current state.
func (m *SpeedMonitor) State() SpeedState {
	return m.state
}

// Observe evaluates an accepted sample. The speed is the device-reported
// speed when present, otherwise distance over elapsed time since the
// previous accepted sample.
func (m *SpeedMonitor) Observe(a Accepted) SpeedReading {
	if m.state.Kind == SpeedTerminated {
		return m.reading(m.lastSpeed, "", false)
	}

	kmh, ok := speedKmh(a)
	if !ok {
		return m.advance(a.Timestamp)
	}
	m.lastSpeed = kmh

	if kmh <= m.policy.HardLimitKmh {
		changed := m.state.Kind != SpeedNormal
		m.state = SpeedState{Kind: SpeedNormal}
		m.deadline = time.Time{}

		var msg string
		if m.policy.SoftLimitKmh > 0 && kmh > m.policy.SoftLimitKmh {
			msg = fmt.Sprintf("You are moving at %.0f km/h. Slow down to keep claiming on foot.", kmh)
		}
		return m.reading(kmh, msg, changed)
	}

	if m.policy.GracePeriod <= 0 {
		return m.terminate(kmh)
	}

	if m.state.Kind == SpeedNormal {
		m.deadline = a.Timestamp.Add(m.policy.GracePeriod)
		m.state = SpeedState{Kind: SpeedWarning, SecondsRemaining: secondsUntil(m.deadline, a.Timestamp, m.policy.GracePeriod)}
		return m.reading(kmh, m.warningMessage(kmh), true)
	}

	return m.advance(a.Timestamp)
}

// Tick advances the countdown to now. It is a no-op outside the Warning state.
func (m *SpeedMonitor) Tick(now time.Time) SpeedReading {
	return m.advance(now)
}

// Reset returns the monitor to Normal, clearing any countdown.
func (m *SpeedMonitor) Reset() {
	m.state = SpeedState{}
	m.deadline = time.Time{}
	m.lastSpeed = 0
}

func (m *SpeedMonitor) advance(now time.Time) SpeedReading {
	if m.state.Kind != SpeedWarning || now.IsZero() {
		return m.reading(m.lastSpeed, "", false)
	}

	if !now.Before(m.deadline) {
		return m.terminate(m.lastSpeed)
	}

	remaining := secondsUntil(m.deadline, now, m.policy.GracePeriod)
	changed := remaining != m.state.SecondsRemaining
	m.state.SecondsRemaining = remaining
	return m.reading(m.lastSpeed, m.warningMessage(m.lastSpeed), changed)
}

func (m *SpeedMonitor) terminate(kmh float64) SpeedReading {
	m.state = SpeedState{Kind: SpeedTerminated}
	m.deadline = time.Time{}
	msg := fmt.Sprintf("Session stopped: movement above %.0f km/h is not allowed.", m.policy.HardLimitKmh)
	return m.reading(kmh, msg, true)
}

func (m *SpeedMonitor) warningMessage(kmh float64) string {
	return fmt.Sprintf("You are moving at %.0f km/h. Slow down within %d s or the session ends.",
		kmh, m.state.SecondsRemaining)
}

func (m *SpeedMonitor) reading(kmh float64, msg string, changed bool) SpeedReading {
	return SpeedReading{
		SpeedKmh: kmh,
		State:    m.state,
		Message:  msg,
		Changed:  changed,
	}
}

func speedKmh(a Accepted) (float64, bool) {
	if a.Speed != nil {
		return *a.Speed * 3.6, true
	}
	if a.First || a.Elapsed <= 0 {
		return 0, false
	}
	return a.DistanceFromPrev / a.Elapsed.Seconds() * 3.6, true
}

// secondsUntil rounds the time left up to whole seconds, capped at the grace period.
func secondsUntil(deadline, now time.Time, grace time.Duration) int {
	left := deadline.Sub(now)
	if left > grace {
		left = grace
	}
	return int(math.Ceil(left.Seconds()))
}
