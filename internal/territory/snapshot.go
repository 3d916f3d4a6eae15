package territory

import (
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the active territories at a point in time.
// It is a local cache and may be briefly stale.
type Snapshot struct {
	Territories []*Territory `cbor:"territories"`
	FetchedAt   time.Time    `cbor:"fetched_at"`
}

// NewSnapshot builds a snapshot from the active territories in list. The
// territories are deep-copied so later mutation by the caller is not visible.
func NewSnapshot(list []*Territory, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		Territories: make([]*Territory, 0, len(list)),
		FetchedAt:   fetchedAt,
	}
	for _, t := range list {
		if t == nil || !t.Active || len(t.Polygon) < 3 {
			continue
		}
		c := t.clone()
		c.Prepare()
		s.Territories = append(s.Territories, c)
	}
	return s
}

// Len returns the number of territories in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Territories)
}

// Age returns how long ago the snapshot was fetched.
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s == nil || s.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(s.FetchedAt)
}

// foreign returns the territories not owned by ownerID.
func (s *Snapshot) foreign(ownerID string) []*Territory {
	if s == nil {
		return nil
	}
	out := make([]*Territory, 0, len(s.Territories))
	for _, t := range s.Territories {
		if t.OwnerID != ownerID {
			out = append(out, t)
		}
	}
	return out
}

// SnapshotStore holds the current snapshot. Readers always see a complete
// snapshot; a refresh replaces it in one atomic swap.
type SnapshotStore struct {
	current atomic.Pointer[Snapshot]
}

// NewSnapshotStore creates a store holding an empty snapshot.
func NewSnapshotStore() *SnapshotStore {
	s := &SnapshotStore{}
	s.current.Store(&Snapshot{})
	return s
}

// Load returns the current snapshot.
func (s *SnapshotStore) Load() *Snapshot {
	return s.current.Load()
}

// Swap installs next and returns the previous snapshot.
func (s *SnapshotStore) Swap(next *Snapshot) *Snapshot {
	if next == nil {
		next = &Snapshot{}
	}
	return s.current.Swap(next)
}
