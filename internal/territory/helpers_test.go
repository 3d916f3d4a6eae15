package territory

import (
	"math"
	"time"

	"github.com/onnwee/turf/internal/geo"
)

var (
	origin = geo.GeoPoint{Lat: 51.5074, Lng: -0.1278}
	epoch  = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
)

// at returns the point east and north meters from origin.
func at(east, north float64) geo.GeoPoint {
	return geo.Offset(origin, north, east)
}

// square returns an active territory covering [east, east+size] x [north, north+size].
func square(id, owner string, east, north, size float64) *Territory {
	polygon := []geo.GeoPoint{
		at(east, north),
		at(east+size, north),
		at(east+size, north+size),
		at(east, north+size),
	}
	return NewTerritory(id, owner, polygon, geo.SphericalArea(polygon), epoch)
}

// ring returns n points on a circle of radius meters around center.
func ring(center geo.GeoPoint, radius float64, n int) []geo.GeoPoint {
	points := make([]geo.GeoPoint, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		points[i] = geo.Offset(center, radius*math.Sin(theta), radius*math.Cos(theta))
	}
	return points
}

func storeWith(territories ...*Territory) *SnapshotStore {
	store := NewSnapshotStore()
	store.Swap(NewSnapshot(territories, epoch))
	return store
}
