package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/session"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/track"
)

// ErrNoSamples is returned when the sample stream is empty.
var ErrNoSamples = errors.New("no samples to replay")

// ReadSamples decodes one JSON sample per line. Blank lines and lines
// starting with # are skipped.
func ReadSamples(r io.Reader) ([]track.Sample, error) {
	var samples []track.Sample
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var s track.Sample
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}
	return samples, nil
}

// ReadTerritories decodes a JSON array of territories.
func ReadTerritories(r io.Reader) ([]*territory.Territory, error) {
	var list []*territory.Territory
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode territories: %w", err)
	}
	for _, t := range list {
		t.Prepare()
	}
	return list, nil
}

// Options controls one replay.
type Options struct {
	OwnerID string
	Mode    session.Mode
	// Upload stores a valid closed loop as a territory.
	Upload bool
	// Updates, if set, receives every sample result as a JSON line.
	Updates io.Writer

	Session     session.Config
	Validator   territory.ValidatorConfig
	Bands       territory.ProximityBands
	Territories []*territory.Territory
	// History stores the session record. Defaults to an in-memory history.
	History session.History
	Logger  *slog.Logger
}

// savedHistory remembers the record of the replayed session so the summary
// does not depend on how the wrapped history orders its listings.
type savedHistory struct {
	session.History

	mu  sync.Mutex
	rec *session.Record
}

func (h *savedHistory) Save(ctx context.Context, rec session.Record) error {
	if err := h.History.Save(ctx, rec); err != nil {
		return err
	}
	h.mu.Lock()
	h.rec = &rec
	h.mu.Unlock()
	return nil
}

func (h *savedHistory) saved() (session.Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rec == nil {
		return session.Record{}, false
	}
	return *h.rec, true
}

// SampleResult is one line of the update stream.
type SampleResult struct {
	Index  int            `json:"index"`
	Update session.Update `json:"update"`
	// Collision is set when a periodic collision check ran after this sample.
	Collision *territory.CollisionResult `json:"collision,omitempty"`
}

// Summary is the outcome of a replay.
type Summary struct {
	Record     session.Record            `json:"record"`
	StartCheck territory.CollisionResult `json:"start_check"`
	Verdict    *territory.Verdict        `json:"verdict,omitempty"`
	Territory  *territory.Territory      `json:"territory,omitempty"`
	Rejected   map[string]int            `json:"rejected,omitempty"`
	// Path is the recorded path, kept for KML export.
	Path []geo.GeoPoint `json:"-"`
}

// Replay feeds samples through a fresh session exactly as a device would,
// running the speed countdown and the periodic collision check on sample
// time instead of the wall clock.
func Replay(ctx context.Context, opts Options, samples []track.Sample) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrNoSamples
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	store := territory.NewSnapshotStore()
	store.Swap(territory.NewSnapshot(opts.Territories, samples[0].Timestamp))

	if opts.History == nil {
		opts.History = session.NewInMemoryHistory()
	}
	history := &savedHistory{History: opts.History}

	// An ended session drops its path once the termination hook returns.
	var path []geo.GeoPoint
	manager := session.NewManager(session.ManagerConfig{
		Session:     opts.Session,
		Validator:   territory.NewValidator(opts.Validator),
		Engine:      territory.NewCollisionEngine(store, opts.Bands, nil),
		Territories: territory.NewInMemoryRepository(),
		History:     history,
		Logger:      opts.Logger,
		Hooks: session.Hooks{
			OnTerminated: func(s *session.Session, _, _ string) {
				path = s.Points()
			},
		},
	})

	s, err := manager.Start(ctx, opts.OwnerID, opts.Mode, samples[0].Point)
	if err != nil {
		return Summary{}, err
	}

	var enc *json.Encoder
	if opts.Updates != nil {
		enc = json.NewEncoder(opts.Updates)
	}

	summary := Summary{StartCheck: s.StartCheck(), Rejected: map[string]int{}}
	lastCheck := samples[0].Timestamp
	for i, sample := range samples {
		update, err := s.AddSample(sample)
		if errors.Is(err, session.ErrSessionEnded) || errors.Is(err, session.ErrLoopClosed) {
			break
		}
		if err != nil {
			return Summary{}, err
		}
		if !update.Accepted {
			summary.Rejected[update.Reject.String()]++
		}

		result := SampleResult{Index: i, Update: update}
		if opts.Session.CollisionInterval > 0 && sample.Timestamp.Sub(lastCheck) >= opts.Session.CollisionInterval {
			lastCheck = sample.Timestamp
			if collision, ok := s.CheckCollisions(sample.Timestamp); ok {
				result.Collision = &collision
			}
		}
		if enc != nil {
			if err := enc.Encode(result); err != nil {
				return Summary{}, fmt.Errorf("failed to write update: %w", err)
			}
		}
		if !s.IsActive() {
			break
		}
	}

	// Let a countdown still running at the last sample run out.
	if s.IsActive() {
		last := samples[len(samples)-1].Timestamp
		grace := opts.Session.ClaimingPolicy.GracePeriod
		if opts.Mode == session.ModeExplore {
			grace = opts.Session.ExplorationPolicy.GracePeriod
		}
		s.Tick(last.Add(grace + time.Second))
	}

	if s.IsActive() {
		path = s.Points()
	}
	summary.Path = path
	if v, ok := s.Verdict(); ok {
		summary.Verdict = &v
	}

	if s.IsActive() && opts.Upload && summary.Verdict != nil && summary.Verdict.Valid {
		t, err := manager.Upload(ctx)
		if err != nil {
			return Summary{}, err
		}
		summary.Territory = t
	} else if manager.Active() != nil {
		if _, err := manager.Stop(ctx); err != nil {
			return Summary{}, err
		}
	}

	rec, ok := history.saved()
	if !ok {
		return Summary{}, errors.New("session was not recorded")
	}
	summary.Record = rec
	if len(summary.Rejected) == 0 {
		summary.Rejected = nil
	}
	return summary, nil
}
