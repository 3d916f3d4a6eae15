package track

import "github.com/onnwee/turf/internal/geo"

// Default recorder thresholds.
const (
	DefaultMinPoints     = 10
	DefaultClosureMeters = 15.0
)

// ClosureState tracks whether the recorded path has returned to its start.
type ClosureState int

const (
	ClosureOpen ClosureState = iota
	ClosureClosed
)

// String returns the label used in logs.
func (s ClosureState) String() string {
	if s == ClosureClosed {
		return "closed"
	}
	return "open"
}

// RecorderConfig holds the closure thresholds.
type RecorderConfig struct {
	MinPoints     int
	ClosureMeters float64
}

// DefaultRecorderConfig returns the default closure thresholds.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		MinPoints:     DefaultMinPoints,
		ClosureMeters: DefaultClosureMeters,
	}
}

// Recorder holds the path of the active session and detects closure.
type Recorder struct {
	config RecorderConfig
	points []geo.GeoPoint
	length float64
	state  ClosureState
}

// NewRecorder creates an empty recorder. Zero thresholds fall back to the defaults.
func NewRecorder(config RecorderConfig) *Recorder {
	if config.MinPoints <= 0 {
		config.MinPoints = DefaultMinPoints
	}
	if config.ClosureMeters <= 0 {
		config.ClosureMeters = DefaultClosureMeters
	}
	return &Recorder{config: config}
}

// Append adds p to the path and reports whether this append closed the loop.
// It returns true at most once per session.
func (r *Recorder) Append(p geo.GeoPoint) bool {
	if n := len(r.points); n > 0 {
		r.length += geo.Distance(r.points[n-1], p)
	}
	r.points = append(r.points, p)

	if r.state == ClosureClosed || len(r.points) < r.config.MinPoints {
		return false
	}
	if r.DistanceToStart() > r.config.ClosureMeters {
		return false
	}

	r.state = ClosureClosed
	return true
}

// DistanceToStart returns the distance in meters from the last point back to the first.
func (r *Recorder) DistanceToStart() float64 {
	if len(r.points) < 2 {
		return 0
	}
	return geo.Distance(r.points[0], r.points[len(r.points)-1])
}

// Points returns a copy of the recorded path.
func (r *Recorder) Points() []geo.GeoPoint {
	out := make([]geo.GeoPoint, len(r.points))
	copy(out, r.points)
	return out
}

// Len returns the number of recorded points.
func (r *Recorder) Len() int { return len(r.points) }

// Length returns the cumulative path length in meters.
func (r *Recorder) Length() float64 { return r.length }

// State returns the closure state.
func (r *Recorder) State() ClosureState { return r.state }

// Reset clears the path and reopens the recorder.
func (r *Recorder) Reset() {
	r.points = nil
	r.length = 0
	r.state = ClosureOpen
}
