// Package geo provides the geographic math behind territory claiming:
// great-circle distance, polygon containment, segment crossing, spherical
// area and the geohash encoding used to index territories coarsely.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by every calculation in this package.
const EarthRadiusMeters = 6371000.0

// GeoPoint is a geographic coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat" cbor:"lat"`
	Lng float64 `json:"lng" cbor:"lng"`
}

// Distance returns the great-circle distance in meters between a and b
// using the haversine formula.
func Distance(a, b GeoPoint) float64 {
	if a == b {
		return 0
	}

	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	deltaLat := toRadians(b.Lat - a.Lat)
	deltaLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// PathLength returns the cumulative distance in meters between consecutive points.
func PathLength(points []GeoPoint) float64 {
	if len(points) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// Offset returns the point reached by moving north and east meters from p.
// It uses an equirectangular approximation, which is accurate for the
// sub-kilometer offsets used to build walking loops.
func Offset(p GeoPoint, northMeters, eastMeters float64) GeoPoint {
	dLat := northMeters / EarthRadiusMeters
	dLng := eastMeters / (EarthRadiusMeters * math.Cos(toRadians(p.Lat)))
	return GeoPoint{
		Lat: p.Lat + toDegrees(dLat),
		Lng: p.Lng + toDegrees(dLng),
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
