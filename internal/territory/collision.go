package territory

import (
	"fmt"

	"github.com/onnwee/turf/internal/geo"
)

// WarningLevel grades how close a player is to foreign territory. Levels are
// ordered by severity, so they can be compared with < and >.
type WarningLevel int

const (
	LevelSafe WarningLevel = iota
	LevelCaution
	LevelWarning
	LevelDanger
	LevelViolation
)

// String returns the label used in logs and metrics.
func (l WarningLevel) String() string {
	switch l {
	case LevelSafe:
		return "safe"
	case LevelCaution:
		return "caution"
	case LevelWarning:
		return "warning"
	case LevelDanger:
		return "danger"
	case LevelViolation:
		return "violation"
	default:
		return "unknown"
	}
}

// MarshalText encodes the level by its label.
func (l WarningLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// CollisionKind identifies the kind of violation.
type CollisionKind int

const (
	CollisionNone CollisionKind = iota
	CollisionPointInsideForeignTerritory
	CollisionPathCrossesForeignBoundary
)

// String returns the label used in logs.
func (k CollisionKind) String() string {
	switch k {
	case CollisionNone:
		return "none"
	case CollisionPointInsideForeignTerritory:
		return "point_inside_foreign_territory"
	case CollisionPathCrossesForeignBoundary:
		return "path_crosses_foreign_boundary"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by its label.
func (k CollisionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// NoForeignTerritory is the DistanceToNearest reported when no foreign
// territory exists in the snapshot.
const NoForeignTerritory = -1.0

// CollisionResult is the outcome of a collision check.
type CollisionResult struct {
	HasCollision bool          `json:"has_collision"`
	Kind         CollisionKind `json:"kind"`
	// Message is empty for LevelSafe and non-empty for every other level.
	Message string `json:"message,omitempty"`
	// DistanceToNearest is the distance in meters to the nearest foreign
	// territory vertex, 0 on a violation, or NoForeignTerritory.
	DistanceToNearest float64      `json:"distance_to_nearest"`
	Level             WarningLevel `json:"level"`
	// TerritoryID is the territory that was violated or is nearest.
	TerritoryID string `json:"territory_id,omitempty"`
}

// ProximityBands are the distance thresholds in meters for the advisory levels.
// A distance above CautionMeters is safe, above WarningMeters is a caution,
// at least DangerMeters is a warning and anything closer is danger.
type ProximityBands struct {
	CautionMeters float64
	WarningMeters float64
	DangerMeters  float64
}

// DefaultProximityBands returns the 100/50/25 m bands.
func DefaultProximityBands() ProximityBands {
	return ProximityBands{
		CautionMeters: 100,
		WarningMeters: 50,
		DangerMeters:  25,
	}
}

// Level maps a distance to its advisory level.
func (b ProximityBands) Level(meters float64) WarningLevel {
	switch {
	case meters > b.CautionMeters:
		return LevelSafe
	case meters > b.WarningMeters:
		return LevelCaution
	case meters >= b.DangerMeters:
		return LevelWarning
	default:
		return LevelDanger
	}
}

// CollisionEngine checks points and paths against foreign territories in the
// current snapshot. It is safe for concurrent use.
type CollisionEngine struct {
	store   *SnapshotStore
	bands   ProximityBands
	metrics *Metrics
}

// NewCollisionEngine creates an engine reading from store. metrics may be nil.
func NewCollisionEngine(store *SnapshotStore, bands ProximityBands, metrics *Metrics) *CollisionEngine {
	return &CollisionEngine{store: store, bands: bands, metrics: metrics}
}

// Bands returns the engine's proximity bands.
func (e *CollisionEngine) Bands() ProximityBands {
	return e.bands
}

// CheckStart checks a candidate start point for ownerID. A point inside a
// foreign territory is a violation; otherwise the result grades proximity.
func (e *CollisionEngine) CheckStart(ownerID string, p geo.GeoPoint) CollisionResult {
	result := e.checkStart(ownerID, p)
	e.observe("start", result)
	return result
}

func (e *CollisionEngine) checkStart(ownerID string, p geo.GeoPoint) CollisionResult {
	foreign := e.store.Load().foreign(ownerID)

	if t := containing(foreign, p); t != nil {
		return insideResult(t)
	}
	return e.proximity(foreign, p)
}

// CheckPath checks the path walked so far by ownerID. Any path segment that
// crosses a foreign boundary is a violation, as is a last point inside a
// foreign territory. Otherwise the result grades the last point's proximity.
func (e *CollisionEngine) CheckPath(ownerID string, path []geo.GeoPoint) CollisionResult {
	result := e.checkPath(ownerID, path)
	e.observe("path", result)
	return result
}

func (e *CollisionEngine) checkPath(ownerID string, path []geo.GeoPoint) CollisionResult {
	if len(path) == 0 {
		return CollisionResult{DistanceToNearest: NoForeignTerritory, Level: LevelSafe}
	}
	foreign := e.store.Load().foreign(ownerID)

	if len(path) >= 2 {
		pathBounds := geo.Bounds(path)
		for _, t := range foreign {
			if !pathBounds.Intersects(t.Bounds()) {
				continue
			}
			if crossesBoundary(path, t) {
				return CollisionResult{
					HasCollision:      true,
					Kind:              CollisionPathCrossesForeignBoundary,
					Message:           "Your path crosses into another player's territory.",
					DistanceToNearest: 0,
					Level:             LevelViolation,
					TerritoryID:       t.ID,
				}
			}
		}
	}

	last := path[len(path)-1]
	if t := containing(foreign, last); t != nil {
		return insideResult(t)
	}
	return e.proximity(foreign, last)
}

func (e *CollisionEngine) observe(check string, result CollisionResult) {
	if e.metrics != nil {
		e.metrics.IncCollisionChecks(check, result.Level)
	}
}

func (e *CollisionEngine) proximity(foreign []*Territory, p geo.GeoPoint) CollisionResult {
	nearest := NoForeignTerritory
	var nearestID string
	for _, t := range foreign {
		for _, v := range t.Polygon {
			d := geo.Distance(p, v)
			if nearest < 0 || d < nearest {
				nearest = d
				nearestID = t.ID
			}
		}
	}

	if nearest < 0 {
		return CollisionResult{DistanceToNearest: NoForeignTerritory, Level: LevelSafe}
	}

	level := e.bands.Level(nearest)
	result := CollisionResult{
		DistanceToNearest: nearest,
		Level:             level,
		TerritoryID:       nearestID,
	}
	switch level {
	case LevelCaution:
		result.Message = fmt.Sprintf("Another player's territory is %.0f m away.", nearest)
	case LevelWarning:
		result.Message = fmt.Sprintf("Careful: another player's territory is %.0f m away.", nearest)
	case LevelDanger:
		result.Message = fmt.Sprintf("Turn back: another player's territory is only %.0f m away.", nearest)
	}
	return result
}

func containing(foreign []*Territory, p geo.GeoPoint) *Territory {
	for _, t := range foreign {
		if !t.Bounds().Contains(p) {
			continue
		}
		if geo.PointInPolygon(p, t.Polygon) {
			return t
		}
	}
	return nil
}

func insideResult(t *Territory) CollisionResult {
	return CollisionResult{
		HasCollision:      true,
		Kind:              CollisionPointInsideForeignTerritory,
		Message:           "You are inside another player's territory.",
		DistanceToNearest: 0,
		Level:             LevelViolation,
		TerritoryID:       t.ID,
	}
}

// crossesBoundary reports whether any segment of path properly crosses any
// edge of t, including the edge closing the polygon.
func crossesBoundary(path []geo.GeoPoint, t *Territory) bool {
	tb := t.Bounds()
	n := len(t.Polygon)
	for i := 0; i+1 < len(path); i++ {
		a, b := path[i], path[i+1]
		if !geo.Bounds([]geo.GeoPoint{a, b}).Intersects(tb) {
			continue
		}
		for j := 0; j < n; j++ {
			if geo.SegmentsIntersect(a, b, t.Polygon[j], t.Polygon[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}
