package geo

import (
	"fmt"
	"math"
)

// SphericalArea returns the area in square meters enclosed by the implicitly
// closed polygon, using the spherical-excess form of the shoelace formula:
//
//	|Σ (λ[i+1] − λ[i]) · (2 + sin φ[i] + sin φ[i+1])| · R² / 2
//
// with λ the longitude and φ the latitude in radians. It panics if fewer
// than 3 points are given.
func SphericalArea(points []GeoPoint) float64 {
	n := len(points)
	if n < 3 {
		panic(fmt.Sprintf("geo: SphericalArea needs at least 3 points, got %d", n))
	}

	var sum float64
	for i := 0; i < n; i++ {
		p1 := points[i]
		p2 := points[(i+1)%n]
		sum += toRadians(p2.Lng-p1.Lng) *
			(2 + math.Sin(toRadians(p1.Lat)) + math.Sin(toRadians(p2.Lat)))
	}

	return math.Abs(sum) * EarthRadiusMeters * EarthRadiusMeters / 2
}
