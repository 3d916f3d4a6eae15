// Package track turns raw position samples into a trustworthy walked path.
// It filters jittery or inaccurate samples, watches the implied speed for
// vehicle-assisted movement and records the path until it closes on itself.
//
// Types in this package are not safe for concurrent use; callers serialize
// access (see the session package).
package track

import (
	"time"

	"github.com/onnwee/turf/internal/geo"
)

// Default filter thresholds.
const (
	DefaultMaxAccuracyMeters = 50.0
	DefaultMinMovementMeters = 5.0
)

// Sample is one position report from the device.
type Sample struct {
	Point geo.GeoPoint `json:"point"`
	// Speed is the device-reported speed in m/s, if known.
	Speed *float64 `json:"speed,omitempty"`
	// Accuracy is the horizontal accuracy radius in meters, if known.
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RejectReason explains why the filter dropped a sample.
type RejectReason int

const (
	// RejectNone means the sample was accepted.
	RejectNone RejectReason = iota
	// RejectLowAccuracy means the reported accuracy was coarser than allowed.
	RejectLowAccuracy
	// RejectInsufficientMovement means the sample was too close to the last accepted point.
	RejectInsufficientMovement
	// RejectOutOfOrder means the sample was older than the last accepted sample.
	RejectOutOfOrder
)

// String returns the label used in logs and metrics.
func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "accepted"
	case RejectLowAccuracy:
		return "low_accuracy"
	case RejectInsufficientMovement:
		return "insufficient_movement"
	case RejectOutOfOrder:
		return "out_of_order"
	default:
		return "unknown"
	}
}

// MarshalText encodes the reason by its label.
func (r RejectReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// FilterConfig holds the sample filter thresholds.
type FilterConfig struct {
	MaxAccuracyMeters float64
	MinMovementMeters float64
}

// DefaultFilterConfig returns the default filter thresholds.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MaxAccuracyMeters: DefaultMaxAccuracyMeters,
		MinMovementMeters: DefaultMinMovementMeters,
	}
}

// Accepted is a sample that passed the filter, annotated with its offset
// from the previously accepted sample.
type Accepted struct {
	Sample
	// First is true for the first accepted sample of a session.
	First bool
	// DistanceFromPrev is the great-circle distance in meters to the previous accepted sample.
	DistanceFromPrev float64
	// Elapsed is the time since the previous accepted sample.
	Elapsed time.Duration
}

// Filter drops samples that would add noise to the recorded path.
type Filter struct {
	config FilterConfig
	last   *Sample
}

// NewFilter creates a filter. Thresholds of zero or less fall back to the
// defaults, which is why configuration requires both to be positive.
func NewFilter(config FilterConfig) *Filter {
	if config.MaxAccuracyMeters <= 0 {
		config.MaxAccuracyMeters = DefaultMaxAccuracyMeters
	}
	if config.MinMovementMeters <= 0 {
		config.MinMovementMeters = DefaultMinMovementMeters
	}
	return &Filter{config: config}
}

// Offer runs s through the filter. The returned reason is RejectNone when
// the sample was accepted, in which case Accepted is populated.
//
// The first sample of a session is always accepted as the path origin.
func (f *Filter) Offer(s Sample) (Accepted, RejectReason) {
	if f.last == nil {
		f.last = &s
		return Accepted{Sample: s, First: true}, RejectNone
	}

	if s.Accuracy != nil && *s.Accuracy > f.config.MaxAccuracyMeters {
		return Accepted{}, RejectLowAccuracy
	}

	if !s.Timestamp.IsZero() && !f.last.Timestamp.IsZero() && s.Timestamp.Before(f.last.Timestamp) {
		return Accepted{}, RejectOutOfOrder
	}

	dist := geo.Distance(f.last.Point, s.Point)
	if dist < f.config.MinMovementMeters {
		return Accepted{}, RejectInsufficientMovement
	}

	accepted := Accepted{
		Sample:           s,
		DistanceFromPrev: dist,
	}
	if !s.Timestamp.IsZero() && !f.last.Timestamp.IsZero() {
		accepted.Elapsed = s.Timestamp.Sub(f.last.Timestamp)
	}
	f.last = &s
	return accepted, RejectNone
}

// Last returns the last accepted sample, if any.
func (f *Filter) Last() (Sample, bool) {
	if f.last == nil {
		return Sample{}, false
	}
	return *f.last, true
}

// Reset forgets the last accepted sample so the next one starts a new path.
func (f *Filter) Reset() {
	f.last = nil
}
