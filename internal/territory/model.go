// Package territory validates walked loops as claimable territories, keeps a
// refreshable snapshot of claimed territories and checks candidate paths
// against it.
package territory

import (
	"time"

	"github.com/onnwee/turf/internal/geo"
)

// Territory is a claimed, implicitly closed polygon.
type Territory struct {
	ID      string         `json:"id" cbor:"id"`
	OwnerID string         `json:"owner_id" cbor:"owner_id"`
	Polygon []geo.GeoPoint `json:"polygon" cbor:"polygon"`
	// Area is the enclosed area in square meters.
	Area       float64   `json:"area" cbor:"area"`
	PointCount int       `json:"point_count" cbor:"point_count"`
	Active     bool      `json:"active" cbor:"active"`
	CreatedAt  time.Time `json:"created_at" cbor:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" cbor:"updated_at"`

	bounds    geo.BoundingBox
	hasBounds bool
}

// NewTerritory builds an active territory from a validated loop.
func NewTerritory(id, ownerID string, polygon []geo.GeoPoint, area float64, now time.Time) *Territory {
	points := make([]geo.GeoPoint, len(polygon))
	copy(points, polygon)

	t := &Territory{
		ID:         id,
		OwnerID:    ownerID,
		Polygon:    points,
		Area:       area,
		PointCount: len(points),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.Prepare()
	return t
}

// Prepare caches the bounding box. Call it again after mutating Polygon.
func (t *Territory) Prepare() {
	t.bounds = geo.Bounds(t.Polygon)
	t.hasBounds = true
}

// Bounds returns the polygon's bounding box.
func (t *Territory) Bounds() geo.BoundingBox {
	if t.hasBounds {
		return t.bounds
	}
	return geo.Bounds(t.Polygon)
}

// WKT returns the polygon as longitude-first well-known text with a closed ring.
func (t *Territory) WKT() string {
	return geo.PolygonWKT(t.Polygon)
}

// CoarseGeohash returns the geohash cell covering the whole territory.
func (t *Territory) CoarseGeohash() string {
	return geo.CoverHash(t.Bounds(), geo.IndexPrecision)
}

// clone returns a deep copy of t.
func (t *Territory) clone() *Territory {
	c := *t
	c.Polygon = make([]geo.GeoPoint, len(t.Polygon))
	copy(c.Polygon, t.Polygon)
	return &c
}
