package track

import (
	"math"
	"testing"

	"github.com/onnwee/turf/internal/geo"
)

// loop returns n points walking a 40 m x 40 m square starting and ending near origin.
func loop(n int) []geo.GeoPoint {
	points := make([]geo.GeoPoint, n)
	perimeter := 160.0
	for i := 0; i < n; i++ {
		d := perimeter * float64(i) / float64(n)
		var north, east float64
		switch {
		case d < 40:
			east = d
		case d < 80:
			east, north = 40, d-40
		case d < 120:
			east, north = 120-d, 40
		default:
			north = 160 - d
		}
		points[i] = geo.Offset(origin, north, east)
	}
	return points
}

func TestRecorderDoesNotCloseBelowMinPoints(t *testing.T) {
	r := NewRecorder(DefaultRecorderConfig())

	path := loop(8)
	for _, p := range path {
		if r.Append(p) {
			t.Fatal("closed while walking the loop")
		}
	}
	// Ninth point right next to the start.
	if r.Append(geo.Offset(origin, 1, 1)) {
		t.Fatal("closed with 9 points")
	}
	if r.State() != ClosureOpen {
		t.Errorf("State = %v, want open", r.State())
	}
}

func TestRecorderClosesOnEleventhPoint(t *testing.T) {
	r := NewRecorder(DefaultRecorderConfig())

	for i, p := range loop(10) {
		if r.Append(p) {
			t.Fatalf("closed early at point %d", i+1)
		}
	}
	if !r.Append(geo.Offset(origin, -3, 2)) {
		t.Fatal("11th point within threshold did not close the loop")
	}
	if r.State() != ClosureClosed {
		t.Errorf("State = %v, want closed", r.State())
	}
	if r.Append(geo.Offset(origin, -1, 0)) {
		t.Error("closure reported twice")
	}
	if r.Len() != 12 {
		t.Errorf("Len = %d, want 12", r.Len())
	}
}

func TestRecorderLength(t *testing.T) {
	r := NewRecorder(DefaultRecorderConfig())
	path := loop(16)
	for _, p := range path {
		r.Append(p)
	}

	if want := geo.PathLength(path); math.Abs(r.Length()-want) > 1e-6 {
		t.Errorf("Length = %f, want %f", r.Length(), want)
	}
	if want := geo.Distance(path[0], path[len(path)-1]); math.Abs(r.DistanceToStart()-want) > 1e-9 {
		t.Errorf("DistanceToStart = %f, want %f", r.DistanceToStart(), want)
	}
}

func TestRecorderPointsIsACopy(t *testing.T) {
	r := NewRecorder(DefaultRecorderConfig())
	r.Append(origin)
	r.Append(geo.Offset(origin, 10, 0))

	points := r.Points()
	points[0] = geo.GeoPoint{}

	if got := r.Points()[0]; got != origin {
		t.Errorf("recorder point mutated through snapshot: %v", got)
	}
}

func TestRecorderReset(t *testing.T) {
	r := NewRecorder(RecorderConfig{MinPoints: 4, ClosureMeters: 20})
	for _, p := range loop(4) {
		r.Append(p)
	}
	r.Append(origin)
	if r.State() != ClosureClosed {
		t.Fatalf("State = %v, want closed", r.State())
	}

	r.Reset()
	if r.State() != ClosureOpen || r.Len() != 0 || r.Length() != 0 {
		t.Errorf("after Reset: state=%v len=%d length=%f, want empty open recorder", r.State(), r.Len(), r.Length())
	}
}
