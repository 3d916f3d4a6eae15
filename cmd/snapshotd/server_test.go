package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/health"
	"github.com/onnwee/turf/internal/jobs"
	"github.com/onnwee/turf/internal/territory"
)

var fetchedAt = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func squareAt(id, owner string, lat, lng float64) *territory.Territory {
	polygon := []geo.GeoPoint{
		{Lat: lat, Lng: lng},
		{Lat: lat, Lng: lng + 0.001},
		{Lat: lat + 0.001, Lng: lng + 0.001},
		{Lat: lat + 0.001, Lng: lng},
	}
	return territory.NewTerritory(id, owner, polygon, geo.SphericalArea(polygon), fetchedAt)
}

type testServer struct {
	handler http.Handler
	store   *territory.SnapshotStore
}

func newTestServer(t *testing.T, loaded bool) *testServer {
	t.Helper()
	ctx := context.Background()
	repo := territory.NewInMemoryRepository()
	for _, tt := range []*territory.Territory{
		squareAt("t-alice", "alice", 0, 0),
		squareAt("t-bob", "bob", 1, 1),
	} {
		if err := repo.Insert(ctx, tt); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	store := territory.NewSnapshotStore()
	if loaded {
		list, _ := repo.ListActive(ctx)
		store.Swap(territory.NewSnapshot(list, fetchedAt))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := newRouter(serverDeps{
		Store: store,
		Repo:  repo,
		Health: health.NewHandlers(health.HandlersConfig{
			SnapshotChecker: health.NewSnapshotChecker(store, 0),
			Logger:          logger,
		}),
		Gatherer: prometheus.NewRegistry(),
		Logger:   logger,
		now:      func() time.Time { return fetchedAt.Add(time.Minute) },
	})
	return &testServer{handler: router, store: store}
}

func (s *testServer) get(path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return body.Error.Code
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t, true)

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantError string
		wantCount int
	}{
		{"bbox around alice", "/territories?bbox=-0.5,-0.5,0.5,0.5", http.StatusOK, "", 1},
		{"bbox around both", "/territories?bbox=-1,-1,2,2", http.StatusOK, "", 2},
		{"bbox around nothing", "/territories?bbox=10,10,11,11", http.StatusOK, "", 0},
		{"missing bbox", "/territories", http.StatusBadRequest, errCodeBadBoundingBox, 0},
		{"inverted bbox", "/territories?bbox=1,0,0,1", http.StatusBadRequest, errCodeBadBoundingBox, 0},
		{"owner", "/owners/bob/territories", http.StatusOK, "", 1},
		{"owner without territories", "/owners/carol/territories", http.StatusOK, "", 0},
		{"unknown route", "/scenes", http.StatusNotFound, errCodeNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := srv.get(tt.path, nil)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			if tt.wantError != "" {
				if code := errorCode(t, rr); code != tt.wantError {
					t.Errorf("error code = %q, want %q", code, tt.wantError)
				}
				return
			}
			var body territoriesResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Count != tt.wantCount || len(body.Territories) != tt.wantCount {
				t.Errorf("count = %d (%d territories), want %d", body.Count, len(body.Territories), tt.wantCount)
			}
		})
	}
}

func TestTerritoryByID(t *testing.T) {
	srv := newTestServer(t, true)

	rr := srv.get("/territories/t-alice", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got territory.Territory
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode territory: %v", err)
	}
	if got.ID != "t-alice" || got.OwnerID != "alice" || got.PointCount != 4 {
		t.Errorf("territory = %+v", got)
	}

	rr = srv.get("/territories/t-nobody", nil)
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != errCodeNotFound {
		t.Errorf("missing territory: status %d, body %s", rr.Code, rr.Body.String())
	}
}

func TestSnapshotJSON(t *testing.T) {
	srv := newTestServer(t, true)

	rr := srv.get("/snapshot", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if age := rr.Header().Get("X-Snapshot-Age"); age != "60" {
		t.Errorf("X-Snapshot-Age = %q, want 60", age)
	}
	var body snapshotResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if len(body.Territories) != 2 || !body.FetchedAt.Equal(fetchedAt) || body.AgeSeconds != 60 {
		t.Errorf("snapshot = %+v", body)
	}
}

func TestSnapshotCBOR(t *testing.T) {
	srv := newTestServer(t, true)

	rr := srv.get("/snapshot", map[string]string{"Accept": contentTypeCBOR})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != contentTypeCBOR {
		t.Errorf("Content-Type = %q", ct)
	}
	snap, err := territory.DecodeSnapshot(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}
	if snap.Len() != 2 || !snap.FetchedAt.Equal(fetchedAt) {
		t.Errorf("decoded snapshot has %d territories fetched at %v", snap.Len(), snap.FetchedAt)
	}
}

func TestSnapshotNotLoaded(t *testing.T) {
	srv := newTestServer(t, false)

	for _, path := range []string{"/snapshot", "/territories?bbox=-1,-1,2,2"} {
		rr := srv.get(path, nil)
		if rr.Code != http.StatusServiceUnavailable || errorCode(t, rr) != errCodeSnapshotUnavailable {
			t.Errorf("%s: status %d, body %s", path, rr.Code, rr.Body.String())
		}
	}

	if rr := srv.get("/ready", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready status = %d, want 503", rr.Code)
	}
	if rr := srv.get("/health", nil); rr.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rr.Code)
	}

	srv.store.Swap(territory.NewSnapshot(nil, fetchedAt))
	if rr := srv.get("/ready", nil); rr.Code != http.StatusOK {
		t.Errorf("/ready after load status = %d, want 200", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, true)
	if rr := srv.get("/metrics", nil); rr.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", rr.Code)
	}
}

type fakeCache struct {
	put *territory.Snapshot
	err error
}

func (c *fakeCache) Get(context.Context) (*territory.Snapshot, error) {
	return nil, territory.ErrCacheMiss
}

func (c *fakeCache) Put(_ context.Context, s *territory.Snapshot) error {
	if c.err != nil {
		return c.err
	}
	c.put = s
	return nil
}

type countingReporter struct {
	totals map[string]int
	errors map[string]int
}

func newCountingReporter() *countingReporter {
	return &countingReporter{totals: map[string]int{}, errors: map[string]int{}}
}

func (r *countingReporter) IncJobsTotal(jobType, status string) { r.totals[jobType+"/"+status]++ }

func (r *countingReporter) ObserveJobDuration(string, float64) {}

func (r *countingReporter) IncJobErrors(jobType, errorType string) {
	r.errors[jobType+"/"+errorType]++
}

func TestPublisher(t *testing.T) {
	snap := territory.NewSnapshot([]*territory.Territory{squareAt("t-1", "alice", 0, 0)}, fetchedAt)

	cache := &fakeCache{}
	reporter := newCountingReporter()
	if err := publisher(cache, reporter)(context.Background(), snap); err != nil {
		t.Fatalf("publish error = %v", err)
	}
	if cache.put != snap {
		t.Error("snapshot was not written to the cache")
	}
	if reporter.totals[jobs.JobTypeSnapshotPublish+"/"+jobs.StatusSuccess] != 1 {
		t.Errorf("totals = %v", reporter.totals)
	}

	boom := errors.New("redis down")
	reporter = newCountingReporter()
	err := publisher(&fakeCache{err: boom}, reporter)(context.Background(), snap)
	if !errors.Is(err, boom) {
		t.Fatalf("publish error = %v, want %v", err, boom)
	}
	if reporter.errors[jobs.JobTypeSnapshotPublish+"/cache_error"] != 1 {
		t.Errorf("errors = %v", reporter.errors)
	}
}

func TestErrorBodyShape(t *testing.T) {
	srv := newTestServer(t, true)
	rr := srv.get("/nowhere", nil)
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"message":"The requested resource was not found"`)) {
		t.Errorf("body = %s", rr.Body.String())
	}
}
