package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/session"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/track"
)

var (
	origin = geo.GeoPoint{Lat: 59.3293, Lng: 18.0686}
	t0     = time.Date(2026, 8, 2, 7, 30, 0, 0, time.UTC)
)

func at(east, north float64) geo.GeoPoint {
	return geo.Offset(origin, north, east)
}

func sampleAt(east, north float64, offset time.Duration) track.Sample {
	return track.Sample{Point: at(east, north), Timestamp: t0.Add(offset)}
}

// loop walks a 16-point circle of radius 50 m, ten seconds per point, back to the start.
func loop() []track.Sample {
	const n = 16
	samples := make([]track.Sample, 0, n+1)
	for i := 0; i <= n; i++ {
		theta := 2 * math.Pi * float64(i%n) / n
		samples = append(samples, sampleAt(50*math.Cos(theta), 50*math.Sin(theta), time.Duration(i)*10*time.Second))
	}
	return samples
}

func foreignSquare(east, north, size float64) *territory.Territory {
	polygon := []geo.GeoPoint{
		at(east, north),
		at(east+size, north),
		at(east+size, north+size),
		at(east, north+size),
	}
	return territory.NewTerritory("t-bob", "bob", polygon, geo.SphericalArea(polygon), t0)
}

func options(mode session.Mode, foreign ...*territory.Territory) Options {
	return Options{
		OwnerID:     "alice",
		Mode:        mode,
		Session:     session.DefaultConfig(),
		Validator:   territory.DefaultValidatorConfig(),
		Bands:       territory.DefaultProximityBands(),
		Territories: foreign,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestReplayClaim(t *testing.T) {
	tests := []struct {
		name   string
		upload bool
	}{
		{"upload", true},
		{"dry run", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options(session.ModeClaim)
			opts.Upload = tt.upload

			summary, err := Replay(context.Background(), opts, loop())
			if err != nil {
				t.Fatalf("Replay() error = %v", err)
			}
			if summary.Record.Status != session.StatusCompleted {
				t.Errorf("status = %v, want completed", summary.Record.Status)
			}
			if summary.Verdict == nil || !summary.Verdict.Valid {
				t.Fatalf("verdict = %+v, want valid", summary.Verdict)
			}
			if len(summary.Path) < 16 {
				t.Errorf("path has %d points", len(summary.Path))
			}
			if tt.upload {
				if summary.Territory == nil || summary.Record.TerritoryID != summary.Territory.ID {
					t.Errorf("territory = %+v, record territory %q", summary.Territory, summary.Record.TerritoryID)
				}
			} else if summary.Territory != nil || summary.Record.TerritoryID != "" {
				t.Error("dry run uploaded a territory")
			}
		})
	}
}

func TestReplayExploreSpeedCountdown(t *testing.T) {
	samples := []track.Sample{
		sampleAt(0, 0, 0),
		sampleAt(110, 0, 10*time.Second),
	}

	summary, err := Replay(context.Background(), options(session.ModeExplore), samples)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if summary.Record.Status != session.StatusFailed || summary.Record.FailureReason != session.FailureSpeed {
		t.Errorf("record = %+v, want failed on speed", summary.Record)
	}
}

func TestReplayKeepsPathOfTerminatedSession(t *testing.T) {
	samples := []track.Sample{
		sampleAt(0, 0, 0),
		sampleAt(20, 0, 10*time.Second),
		sampleAt(130, 0, 20*time.Second),
	}

	summary, err := Replay(context.Background(), options(session.ModeExplore), samples)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if summary.Record.Status != session.StatusFailed {
		t.Fatalf("record = %+v, want failed", summary.Record)
	}
	if len(summary.Path) != summary.Record.PointCount || len(summary.Path) == 0 {
		t.Errorf("path has %d points, record %d", len(summary.Path), summary.Record.PointCount)
	}
}

func TestReplayRecordsToHistory(t *testing.T) {
	ctx := context.Background()
	history := session.NewInMemoryHistory()
	// An earlier session of the same owner must not be mistaken for this one.
	if err := history.Save(ctx, session.Record{
		SessionID: "earlier",
		OwnerID:   "alice",
		Status:    session.StatusCancelled,
		StartedAt: t0.Add(24 * time.Hour),
		EndedAt:   t0.Add(25 * time.Hour),
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	opts := options(session.ModeClaim)
	opts.History = history
	summary, err := Replay(ctx, opts, loop())
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if summary.Record.SessionID == "earlier" || summary.Record.Status != session.StatusCompleted {
		t.Errorf("record = %+v", summary.Record)
	}

	records, err := history.ListByOwner(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("history has %d records, want 2", len(records))
	}
}

func TestReplayPeriodicCollision(t *testing.T) {
	var samples []track.Sample
	for i, east := range []float64{0, 30, 60, 90, 120, 150} {
		samples = append(samples, sampleAt(east, 50, time.Duration(i)*10*time.Second))
	}
	opts := options(session.ModeClaim, foreignSquare(100, 0, 100))
	var updates bytes.Buffer
	opts.Updates = &updates

	summary, err := Replay(context.Background(), opts, samples)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if summary.Record.FailureReason != session.FailureCollision {
		t.Errorf("failure reason = %q, want %q", summary.Record.FailureReason, session.FailureCollision)
	}

	// The session fails at the sample inside the square; later samples are not replayed.
	lines := strings.Split(strings.TrimSpace(updates.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d update lines, want 5:\n%s", len(lines), updates.String())
	}
	if !strings.Contains(lines[4], `"level":"violation"`) {
		t.Errorf("last update = %s, want a violation", lines[4])
	}
}

func TestReplayRejectsStartInsideForeignTerritory(t *testing.T) {
	opts := options(session.ModeClaim, foreignSquare(40, -10, 20))
	_, err := Replay(context.Background(), opts, loop()[:1])
	if err == nil || !strings.Contains(err.Error(), "foreign") {
		t.Fatalf("Replay() error = %v, want start inside foreign territory", err)
	}
	if !errors.Is(err, session.ErrStartInsideForeignTerritory) {
		t.Errorf("error %v does not wrap ErrStartInsideForeignTerritory", err)
	}
}

func TestReplayNoSamples(t *testing.T) {
	if _, err := Replay(context.Background(), options(session.ModeClaim), nil); !errors.Is(err, ErrNoSamples) {
		t.Errorf("Replay() error = %v, want ErrNoSamples", err)
	}
}

func TestReadSamples(t *testing.T) {
	input := `# morning walk
{"point":{"lat":59.3293,"lng":18.0686},"accuracy":4.5,"timestamp":"2026-08-02T07:30:00Z"}

{"point":{"lat":59.3294,"lng":18.0686},"timestamp":"2026-08-02T07:30:10Z"}
`
	samples, err := ReadSamples(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadSamples() error = %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].Accuracy == nil || *samples[0].Accuracy != 4.5 {
		t.Errorf("accuracy = %v, want 4.5", samples[0].Accuracy)
	}
	if samples[1].Accuracy != nil {
		t.Errorf("accuracy = %v, want nil", *samples[1].Accuracy)
	}
	if !samples[1].Timestamp.Equal(t0.Add(10 * time.Second)) {
		t.Errorf("timestamp = %v", samples[1].Timestamp)
	}

	_, err = ReadSamples(strings.NewReader("{\"point\":{}}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("ReadSamples() error = %v, want a line 2 error", err)
	}
}

func TestReadTerritories(t *testing.T) {
	input := `[{"id":"t-1","owner_id":"bob","polygon":[
		{"lat":0,"lng":0},{"lat":0,"lng":0.001},{"lat":0.001,"lng":0.001}],
		"area":6000,"point_count":3,"active":true}]`

	list, err := ReadTerritories(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadTerritories() error = %v", err)
	}
	if len(list) != 1 || list[0].OwnerID != "bob" {
		t.Fatalf("territories = %+v", list)
	}
	if b := list[0].Bounds(); b.MaxLat != 0.001 || b.MaxLng != 0.001 {
		t.Errorf("bounds = %+v", b)
	}

	if _, err := ReadTerritories(strings.NewReader("{")); err == nil {
		t.Error("expected error for malformed input")
	}
}
