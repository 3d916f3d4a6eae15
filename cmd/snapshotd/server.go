package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/health"
	"github.com/onnwee/turf/internal/middleware"
	"github.com/onnwee/turf/internal/territory"
)

// Error codes reported in error bodies and request logs.
const (
	errCodeNotFound            = "not_found"
	errCodeBadBoundingBox      = "bad_bbox"
	errCodeSnapshotUnavailable = "snapshot_unavailable"
	errCodeInternal            = "internal_error"
)

const contentTypeCBOR = "application/cbor"

type serverDeps struct {
	Store    *territory.SnapshotStore
	Repo     territory.Repository
	Health   *health.Handlers
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	now      func() time.Time
}

type server struct {
	serverDeps
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type territoriesResponse struct {
	Territories []*territory.Territory `json:"territories"`
	Count       int                    `json:"count"`
}

type snapshotResponse struct {
	FetchedAt   time.Time              `json:"fetched_at"`
	AgeSeconds  float64                `json:"age_seconds"`
	Territories []*territory.Territory `json:"territories"`
}

// newRouter builds the snapshot service routes.
func newRouter(deps serverDeps) *http.ServeMux {
	if deps.now == nil {
		deps.now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &server{serverDeps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", deps.Health.Health)
	mux.HandleFunc("/ready", deps.Health.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /snapshot", s.snapshot)
	mux.HandleFunc("GET /territories", s.territoriesWithin)
	mux.HandleFunc("GET /territories/{id}", s.territoryByID)
	mux.HandleFunc("GET /owners/{owner}/territories", s.territoriesByOwner)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, errCodeNotFound, "The requested resource was not found")
	})
	return mux
}

// snapshot serves the current snapshot as CBOR when asked for it and JSON otherwise.
func (s *server) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loaded(w, r)
	if !ok {
		return
	}
	age := snap.Age(s.now())
	w.Header().Set("X-Snapshot-Age", strconv.FormatFloat(age.Seconds(), 'f', 0, 64))

	if r.Header.Get("Accept") == contentTypeCBOR {
		data, err := territory.EncodeSnapshot(snap)
		if err != nil {
			s.Logger.ErrorContext(r.Context(), "failed to encode snapshot", "error", err)
			s.writeError(w, r, http.StatusInternalServerError, errCodeInternal, "Failed to encode snapshot")
			return
		}
		w.Header().Set("Content-Type", contentTypeCBOR)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	s.writeJSON(w, r, http.StatusOK, snapshotResponse{
		FetchedAt:   snap.FetchedAt,
		AgeSeconds:  age.Seconds(),
		Territories: nonNil(snap.Territories),
	})
}

// territoriesWithin answers bbox queries from the in-memory snapshot.
func (s *server) territoriesWithin(w http.ResponseWriter, r *http.Request) {
	box, err := geo.ParseBoundingBox(r.URL.Query().Get("bbox"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, errCodeBadBoundingBox, err.Error())
		return
	}
	snap, ok := s.loaded(w, r)
	if !ok {
		return
	}

	matches := []*territory.Territory{}
	for _, t := range snap.Territories {
		if t.Bounds().Intersects(box) {
			matches = append(matches, t)
		}
	}
	s.writeJSON(w, r, http.StatusOK, territoriesResponse{Territories: matches, Count: len(matches)})
}

func (s *server) territoryByID(w http.ResponseWriter, r *http.Request) {
	t, err := s.Repo.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, territory.ErrTerritoryNotFound) {
		s.writeError(w, r, http.StatusNotFound, errCodeNotFound, "Territory not found")
		return
	}
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "failed to load territory", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, errCodeInternal, "Failed to load territory")
		return
	}
	s.writeJSON(w, r, http.StatusOK, t)
}

func (s *server) territoriesByOwner(w http.ResponseWriter, r *http.Request) {
	list, err := s.Repo.ListByOwner(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "failed to list territories", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, errCodeInternal, "Failed to list territories")
		return
	}
	list = nonNil(list)
	s.writeJSON(w, r, http.StatusOK, territoriesResponse{Territories: list, Count: len(list)})
}

// loaded returns the current snapshot or writes 503 when none has been loaded.
func (s *server) loaded(w http.ResponseWriter, r *http.Request) (*territory.Snapshot, bool) {
	snap := s.Store.Load()
	if snap == nil || snap.FetchedAt.IsZero() {
		s.writeError(w, r, http.StatusServiceUnavailable, errCodeSnapshotUnavailable, "Territory snapshot not loaded yet")
		return nil, false
	}
	return snap, true
}

func (s *server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	*r = *r.WithContext(middleware.SetErrorCode(r.Context(), code))
	s.writeJSON(w, r, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func nonNil(list []*territory.Territory) []*territory.Territory {
	if list == nil {
		return []*territory.Territory{}
	}
	return list
}
