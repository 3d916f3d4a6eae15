package territory

import (
	"fmt"

	"github.com/onnwee/turf/internal/geo"
)

// Default validation thresholds.
const (
	DefaultMinPoints       = 10
	DefaultMinLengthMeters = 50.0
	DefaultMinAreaSqMeters = 100.0
)

// Reason identifies why a loop was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInsufficientPoints
	ReasonInsufficientDistance
	ReasonSelfIntersecting
	ReasonInsufficientArea
)

// String returns the label used in logs, metrics and persisted history.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "valid"
	case ReasonInsufficientPoints:
		return "insufficient_points"
	case ReasonInsufficientDistance:
		return "insufficient_distance"
	case ReasonSelfIntersecting:
		return "self_intersecting"
	case ReasonInsufficientArea:
		return "insufficient_area"
	default:
		return "unknown"
	}
}

// MarshalText encodes the reason by its label.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Verdict is the outcome of validating a closed loop.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason Reason `json:"reason"`
	// Area is the enclosed area in square meters. It is 0 when validation
	// failed before the area was computed.
	Area         float64 `json:"area"`
	PointCount   int     `json:"point_count"`
	LengthMeters float64 `json:"length_meters"`
}

// Message returns a user-facing explanation of the verdict.
func (v Verdict) Message(cfg ValidatorConfig) string {
	switch v.Reason {
	case ReasonNone:
		return fmt.Sprintf("Territory claimed: %.0f m².", v.Area)
	case ReasonInsufficientPoints:
		return fmt.Sprintf("Walk a longer loop: %d of %d points recorded.", v.PointCount, cfg.MinPoints)
	case ReasonInsufficientDistance:
		return fmt.Sprintf("Walk a longer loop: %.0f of %.0f m covered.", v.LengthMeters, cfg.MinLengthMeters)
	case ReasonSelfIntersecting:
		return "Your path crosses itself. Walk a loop that does not cross its own trail."
	case ReasonInsufficientArea:
		return fmt.Sprintf("Territory too small: %.0f of %.0f m² enclosed.", v.Area, cfg.MinAreaSqMeters)
	default:
		return ""
	}
}

// ValidatorConfig holds the validation thresholds.
type ValidatorConfig struct {
	MinPoints       int
	MinLengthMeters float64
	MinAreaSqMeters float64
	// ClosureWindow is the head/tail segment window exempt from the
	// self-intersection check.
	ClosureWindow int
}

// DefaultValidatorConfig returns the default validation thresholds.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MinPoints:       DefaultMinPoints,
		MinLengthMeters: DefaultMinLengthMeters,
		MinAreaSqMeters: DefaultMinAreaSqMeters,
		ClosureWindow:   geo.DefaultClosureWindow,
	}
}

// Validator decides whether a closed loop is a legal territory.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	config ValidatorConfig
}

// NewValidator creates a validator.
func NewValidator(config ValidatorConfig) *Validator {
	return &Validator{config: config}
}

// Config returns the validator's thresholds.
func (v *Validator) Config() ValidatorConfig {
	return v.config
}

// Validate runs the checks in order and stops at the first failure:
// point count, path length, self-intersection, then area.
func (v *Validator) Validate(points []geo.GeoPoint) Verdict {
	path := make([]geo.GeoPoint, len(points))
	copy(path, points)

	verdict := Verdict{
		PointCount:   len(path),
		LengthMeters: geo.PathLength(path),
	}

	if len(path) < v.config.MinPoints || len(path) < 3 {
		verdict.Reason = ReasonInsufficientPoints
		return verdict
	}
	if verdict.LengthMeters < v.config.MinLengthMeters {
		verdict.Reason = ReasonInsufficientDistance
		return verdict
	}
	if geo.HasSelfIntersection(path, v.config.ClosureWindow) {
		verdict.Reason = ReasonSelfIntersecting
		return verdict
	}

	verdict.Area = geo.SphericalArea(path)
	if verdict.Area < v.config.MinAreaSqMeters {
		verdict.Reason = ReasonInsufficientArea
		return verdict
	}

	verdict.Valid = true
	return verdict
}
