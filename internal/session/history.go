package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrDuplicateRecord is returned when saving a session that was already recorded.
var ErrDuplicateRecord = errors.New("session already recorded")

// Record is the persisted summary of an ended session.
type Record struct {
	SessionID     string    `json:"session_id"`
	OwnerID       string    `json:"owner_id"`
	Mode          Mode      `json:"mode"`
	Status        Status    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	PointCount    int       `json:"point_count"`
	LengthMeters  float64   `json:"length_meters"`
	AreaSqMeters  float64   `json:"area_sq_meters,omitempty"`
	TerritoryID   string    `json:"territory_id,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
}

// Duration returns how long the session recorded.
func (r Record) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// History stores ended sessions.
type History interface {
	// Save stores the record of an ended session.
	Save(ctx context.Context, rec Record) error

	// ListByOwner returns the owner's most recent sessions, newest first.
	// A limit of zero or less returns all of them.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Record, error)
}

// InMemoryHistory is an in-memory implementation of History.
type InMemoryHistory struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewInMemoryHistory creates an empty in-memory history.
func NewInMemoryHistory() *InMemoryHistory {
	return &InMemoryHistory{records: make(map[string]Record)}
}

// Save stores rec.
func (h *InMemoryHistory) Save(_ context.Context, rec Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.records[rec.SessionID]; ok {
		return ErrDuplicateRecord
	}
	h.records[rec.SessionID] = rec
	return nil
}

// ListByOwner returns the owner's sessions, newest first.
func (h *InMemoryHistory) ListByOwner(_ context.Context, ownerID string, limit int) ([]Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []Record
	for _, rec := range h.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
