package session

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/track"
)

var (
	origin = geo.GeoPoint{Lat: 47.6062, Lng: -122.3321}
	t0     = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

// at returns the point east and north meters from origin.
func at(east, north float64) geo.GeoPoint {
	return geo.Offset(origin, north, east)
}

func sample(p geo.GeoPoint, offset time.Duration) track.Sample {
	return track.Sample{Point: p, Timestamp: t0.Add(offset)}
}

// loopSamples walks a 16-point circle of radius 50 m around origin, ten
// seconds per point, and returns to the first point.
func loopSamples() []track.Sample {
	const n = 16
	samples := make([]track.Sample, 0, n+1)
	for i := 0; i <= n; i++ {
		theta := 2 * math.Pi * float64(i%n) / n
		p := at(50*math.Cos(theta), 50*math.Sin(theta))
		samples = append(samples, sample(p, time.Duration(i)*10*time.Second))
	}
	return samples
}

// foreignSquare is bob's territory covering [east, east+size] x [north, north+size].
func foreignSquare(id string, east, north, size float64) *territory.Territory {
	polygon := []geo.GeoPoint{
		at(east, north),
		at(east+size, north),
		at(east+size, north+size),
		at(east, north+size),
	}
	return territory.NewTerritory(id, "bob", polygon, geo.SphericalArea(polygon), t0)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	manager *Manager
	repo    *territory.InMemoryRepository
	history *InMemoryHistory
	metrics *Metrics
}

func newFixture(t *testing.T, config ManagerConfig, foreign ...*territory.Territory) *fixture {
	t.Helper()

	store := territory.NewSnapshotStore()
	store.Swap(territory.NewSnapshot(foreign, t0))

	f := &fixture{
		repo:    territory.NewInMemoryRepository(),
		history: NewInMemoryHistory(),
		metrics: NewMetrics(),
	}
	if config.Session == (Config{}) {
		config.Session = DefaultConfig()
	}
	config.Engine = territory.NewCollisionEngine(store, territory.DefaultProximityBands(), nil)
	config.Territories = f.repo
	config.History = f.history
	config.Metrics = f.metrics
	config.Logger = quietLogger()

	f.manager = NewManager(config)
	seq := 0
	f.manager.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	f.manager.now = func() time.Time { return t0.Add(time.Hour) }
	return f
}
