package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// PointInPolygon reports whether p lies inside polygon using ray casting,
// with longitude as the X axis and latitude as the Y axis. The polygon is
// implicitly closed. A polygon with fewer than 3 vertices contains nothing.
func PointInPolygon(p GeoPoint, polygon []GeoPoint) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := polygon[i], polygon[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			crossLng := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
			if p.Lng < crossLng {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// SegmentsIntersect reports whether segment p1-p2 properly crosses segment p3-p4.
//
// The test compares orientation signs and only reports strict crossings.
// Segments that share an endpoint, touch at a vertex or overlap collinearly
// are reported as not intersecting. This is a known simplification rather
// than a robust geometric predicate; callers that need touching semantics
// must handle them separately.
func SegmentsIntersect(p1, p2, p3, p4 GeoPoint) bool {
	d1 := orientation(p3, p4, p1)
	d2 := orientation(p3, p4, p2)
	d3 := orientation(p1, p2, p3)
	d4 := orientation(p1, p2, p4)

	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// orientation returns the cross product of (b-a) x (c-a) in lng/lat space.
// Positive means c is counter-clockwise of a->b.
func orientation(a, b, c GeoPoint) float64 {
	return (b.Lng-a.Lng)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lng-a.Lng)
}

// BoundingBox is the min/max latitude and longitude of a set of points.
type BoundingBox struct {
	MinLat float64 `json:"min_lat" cbor:"min_lat"`
	MinLng float64 `json:"min_lng" cbor:"min_lng"`
	MaxLat float64 `json:"max_lat" cbor:"max_lat"`
	MaxLng float64 `json:"max_lng" cbor:"max_lng"`
}

// Bounds returns the bounding box of points. The zero box is returned for no points.
func Bounds(points []GeoPoint) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}
	b := toRing(points).Bound()
	return BoundingBox{
		MinLat: b.Min.Lat(),
		MinLng: b.Min.Lon(),
		MaxLat: b.Max.Lat(),
		MaxLng: b.Max.Lon(),
	}
}

// Contains reports whether p lies inside or on the edge of the box.
func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Intersects reports whether two boxes overlap, edges included.
func (b BoundingBox) Intersects(other BoundingBox) bool {
	return b.MinLat <= other.MaxLat && other.MinLat <= b.MaxLat &&
		b.MinLng <= other.MaxLng && other.MinLng <= b.MaxLng
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// ErrInvalidBoundingBox is returned by ParseBoundingBox.
var ErrInvalidBoundingBox = errors.New("bounding box must be minLat,minLng,maxLat,maxLng")

// ParseBoundingBox parses "minLat,minLng,maxLat,maxLng".
func ParseBoundingBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, ErrInvalidBoundingBox
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, ErrInvalidBoundingBox
		}
		v[i] = f
	}
	box := BoundingBox{MinLat: v[0], MinLng: v[1], MaxLat: v[2], MaxLng: v[3]}
	if box.MinLat > box.MaxLat || box.MinLng > box.MaxLng {
		return BoundingBox{}, ErrInvalidBoundingBox
	}
	return box, nil
}

// PolygonWKT encodes points as a well-known-text POLYGON with longitude-first
// coordinates and an explicitly closed ring (the first point repeated last).
// An empty string is returned for fewer than 3 points.
func PolygonWKT(points []GeoPoint) string {
	if len(points) < 3 {
		return ""
	}
	ring := toRing(points)
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return wkt.MarshalString(orb.Polygon{ring})
}

// ParsePolygonWKT decodes a POLYGON produced by PolygonWKT back into its
// vertices. The closing point is dropped so the result is implicitly closed.
func ParsePolygonWKT(s string) ([]GeoPoint, error) {
	poly, err := wkt.UnmarshalPolygon(s)
	if err != nil {
		return nil, err
	}
	if len(poly) == 0 {
		return nil, nil
	}
	ring := poly[0]
	if ring.Closed() && len(ring) > 1 {
		ring = ring[:len(ring)-1]
	}
	points := make([]GeoPoint, len(ring))
	for i, p := range ring {
		points[i] = GeoPoint{Lat: p.Lat(), Lng: p.Lon()}
	}
	return points, nil
}

func toRing(points []GeoPoint) orb.Ring {
	ring := make(orb.Ring, len(points))
	for i, p := range points {
		ring[i] = orb.Point{p.Lng, p.Lat}
	}
	return ring
}
