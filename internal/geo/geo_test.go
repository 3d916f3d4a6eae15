package geo

import (
	"errors"
	"math"
	"strings"
	"testing"
)

var origin = GeoPoint{Lat: 52.5200, Lng: 13.4050}

// circle returns n points evenly spaced on a circle of radius meters around center.
func circle(center GeoPoint, radius float64, n int) []GeoPoint {
	points := make([]GeoPoint, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		points[i] = Offset(center, radius*math.Sin(theta), radius*math.Cos(theta))
	}
	return points
}

// local converts east/north meter pairs around origin into points.
func local(coords ...[2]float64) []GeoPoint {
	points := make([]GeoPoint, len(coords))
	for i, c := range coords {
		points[i] = Offset(origin, c[1], c[0])
	}
	return points
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name      string
		a, b      GeoPoint
		want      float64
		tolerance float64
	}{
		{name: "same point", a: origin, b: origin, want: 0, tolerance: 0},
		{name: "100 m north", a: origin, b: Offset(origin, 100, 0), want: 100, tolerance: 0.1},
		{name: "100 m east", a: origin, b: Offset(origin, 0, 100), want: 100, tolerance: 0.1},
		{
			name:      "London to Paris",
			a:         GeoPoint{Lat: 51.5074, Lng: -0.1278},
			b:         GeoPoint{Lat: 48.8566, Lng: 2.3522},
			want:      343_500,
			tolerance: 1_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Distance(%v, %v) = %f, want %f ± %f", tt.a, tt.b, got, tt.want, tt.tolerance)
			}
			if back := Distance(tt.b, tt.a); math.Abs(back-got) > 1e-9 {
				t.Errorf("Distance is not symmetric: %f vs %f", got, back)
			}
		})
	}
}

func TestPathLength(t *testing.T) {
	path := local([2]float64{0, 0}, [2]float64{30, 0}, [2]float64{30, 40})
	got := PathLength(path)
	if math.Abs(got-70) > 0.1 {
		t.Errorf("PathLength = %f, want 70", got)
	}
	if got := PathLength(path[:1]); got != 0 {
		t.Errorf("PathLength(single point) = %f, want 0", got)
	}
	if got := PathLength(nil); got != 0 {
		t.Errorf("PathLength(nil) = %f, want 0", got)
	}
}

func TestPointInPolygon(t *testing.T) {
	square := local([2]float64{0, 0}, [2]float64{100, 0}, [2]float64{100, 100}, [2]float64{0, 100})

	tests := []struct {
		name    string
		point   GeoPoint
		polygon []GeoPoint
		want    bool
	}{
		{name: "centroid", point: Offset(origin, 50, 50), polygon: square, want: true},
		{name: "near corner inside", point: Offset(origin, 5, 5), polygon: square, want: true},
		{name: "far away", point: Offset(origin, 5_000, 5_000), polygon: square, want: false},
		{name: "just outside east edge", point: Offset(origin, 50, 110), polygon: square, want: false},
		{name: "empty polygon", point: origin, polygon: nil, want: false},
		{name: "two vertices", point: Offset(origin, 50, 50), polygon: square[:2], want: false},
		{name: "concave notch", point: Offset(origin, 80, 50), polygon: local(
			[2]float64{0, 0}, [2]float64{100, 0}, [2]float64{100, 100},
			[2]float64{50, 60}, [2]float64{0, 100},
		), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PointInPolygon(tt.point, tt.polygon); got != tt.want {
				t.Errorf("PointInPolygon(%v) = %v, want %v", tt.point, got, tt.want)
			}
		})
	}
}

func TestSegmentsIntersect(t *testing.T) {
	p := func(x, y float64) GeoPoint { return GeoPoint{Lat: y, Lng: x} }

	tests := []struct {
		name           string
		p1, p2, p3, p4 GeoPoint
		want           bool
	}{
		{name: "proper crossing", p1: p(0, 0), p2: p(2, 2), p3: p(0, 2), p4: p(2, 0), want: true},
		{name: "disjoint", p1: p(0, 0), p2: p(1, 0), p3: p(0, 1), p4: p(1, 1), want: false},
		{name: "parallel", p1: p(0, 0), p2: p(2, 2), p3: p(1, 0), p4: p(3, 2), want: false},
		{name: "shared endpoint", p1: p(0, 0), p2: p(1, 1), p3: p(1, 1), p4: p(2, 0), want: false},
		{name: "t junction", p1: p(0, 0), p2: p(2, 0), p3: p(1, 0), p4: p(1, 2), want: false},
		{name: "collinear overlap", p1: p(0, 0), p2: p(2, 0), p3: p(1, 0), p4: p(3, 0), want: false},
		{name: "would cross if extended", p1: p(0, 0), p2: p(1, 1), p3: p(3, 0), p4: p(2, 1), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SegmentsIntersect(tt.p1, tt.p2, tt.p3, tt.p4)
			if got != tt.want {
				t.Errorf("SegmentsIntersect = %v, want %v", got, tt.want)
			}
			if swapped := SegmentsIntersect(tt.p3, tt.p4, tt.p1, tt.p2); swapped != got {
				t.Errorf("SegmentsIntersect is not symmetric: %v vs %v", got, swapped)
			}
		})
	}
}

func TestBounds(t *testing.T) {
	points := []GeoPoint{{Lat: 1, Lng: 5}, {Lat: -2, Lng: 7}, {Lat: 3, Lng: 6}}
	got := Bounds(points)
	want := BoundingBox{MinLat: -2, MinLng: 5, MaxLat: 3, MaxLng: 7}
	if got != want {
		t.Errorf("Bounds = %+v, want %+v", got, want)
	}
	if !got.Contains(GeoPoint{Lat: 0, Lng: 6}) {
		t.Error("Contains(inside) = false, want true")
	}
	if got.Contains(GeoPoint{Lat: 4, Lng: 6}) {
		t.Error("Contains(outside) = true, want false")
	}
	if c := got.Center(); c != (GeoPoint{Lat: 0.5, Lng: 6}) {
		t.Errorf("Center = %v, want {0.5 6}", c)
	}
	if empty := Bounds(nil); empty != (BoundingBox{}) {
		t.Errorf("Bounds(nil) = %+v, want zero box", empty)
	}
}

func TestBoundingBoxIntersects(t *testing.T) {
	a := BoundingBox{MinLat: 0, MinLng: 0, MaxLat: 1, MaxLng: 1}

	tests := []struct {
		name  string
		other BoundingBox
		want  bool
	}{
		{name: "overlap", other: BoundingBox{MinLat: 0.5, MinLng: 0.5, MaxLat: 2, MaxLng: 2}, want: true},
		{name: "contained", other: BoundingBox{MinLat: 0.2, MinLng: 0.2, MaxLat: 0.4, MaxLng: 0.4}, want: true},
		{name: "touching edge", other: BoundingBox{MinLat: 1, MinLng: 0, MaxLat: 2, MaxLng: 1}, want: true},
		{name: "separate", other: BoundingBox{MinLat: 2, MinLng: 2, MaxLat: 3, MaxLng: 3}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Intersects(tt.other); got != tt.want {
				t.Errorf("Intersects = %v, want %v", got, tt.want)
			}
			if got := tt.other.Intersects(a); got != tt.want {
				t.Errorf("reverse Intersects = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolygonWKT(t *testing.T) {
	square := []GeoPoint{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0}}

	got := PolygonWKT(square)
	if !strings.HasPrefix(got, "POLYGON((") {
		t.Fatalf("PolygonWKT = %q, want POLYGON prefix", got)
	}

	parsed, err := ParsePolygonWKT(got)
	if err != nil {
		t.Fatalf("ParsePolygonWKT(%q) error = %v", got, err)
	}
	if len(parsed) != len(square) {
		t.Fatalf("ParsePolygonWKT returned %d points, want %d", len(parsed), len(square))
	}
	for i := range square {
		if parsed[i] != square[i] {
			t.Errorf("point %d = %v, want %v", i, parsed[i], square[i])
		}
	}

	if got := PolygonWKT(square[:2]); got != "" {
		t.Errorf("PolygonWKT(2 points) = %q, want empty", got)
	}
}

func TestPolygonWKTLongitudeFirst(t *testing.T) {
	triangle := []GeoPoint{{Lat: 10, Lng: 20}, {Lat: 11, Lng: 20}, {Lat: 11, Lng: 21}}
	got := PolygonWKT(triangle)
	if !strings.HasPrefix(got, "POLYGON((20 10") {
		t.Errorf("PolygonWKT = %q, want ring starting with \"20 10\"", got)
	}
	if !strings.HasSuffix(got, "20 10))") {
		t.Errorf("PolygonWKT = %q, want ring closed on \"20 10\"", got)
	}
}

func TestParseBoundingBox(t *testing.T) {
	tests := []struct {
		in      string
		want    BoundingBox
		wantErr bool
	}{
		{"47.5,-122.5,47.7,-122.2", BoundingBox{MinLat: 47.5, MinLng: -122.5, MaxLat: 47.7, MaxLng: -122.2}, false},
		{" 0, 0 , 1,1 ", BoundingBox{MaxLat: 1, MaxLng: 1}, false},
		{"1,2,3", BoundingBox{}, true},
		{"a,0,1,1", BoundingBox{}, true},
		{"2,0,1,1", BoundingBox{}, true},
		{"", BoundingBox{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBoundingBox(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBoundingBox(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidBoundingBox) {
				t.Errorf("error = %v, want ErrInvalidBoundingBox", err)
			}
			if got != tt.want {
				t.Errorf("ParseBoundingBox(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}
