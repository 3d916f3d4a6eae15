package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/turf/internal/territory"
)

// ErrSnapshotMissing is returned before the first snapshot has been loaded.
var ErrSnapshotMissing = errors.New("territory snapshot not loaded")

// ErrSnapshotStale is returned when the snapshot is older than the allowed age.
var ErrSnapshotStale = errors.New("territory snapshot is stale")

// SnapshotChecker reports unhealthy until a territory snapshot is loaded and
// again whenever the loaded one grows older than maxAge.
type SnapshotChecker struct {
	store  *territory.SnapshotStore
	maxAge time.Duration
	now    func() time.Time
}

// NewSnapshotChecker creates a snapshot checker. A zero maxAge only checks
// that a snapshot exists.
func NewSnapshotChecker(store *territory.SnapshotStore, maxAge time.Duration) *SnapshotChecker {
	return &SnapshotChecker{store: store, maxAge: maxAge, now: time.Now}
}

// HealthCheck implements Checker.
func (s *SnapshotChecker) HealthCheck(_ context.Context) error {
	snap := s.store.Load()
	if snap == nil || snap.FetchedAt.IsZero() {
		return ErrSnapshotMissing
	}
	if s.maxAge > 0 {
		if age := snap.Age(s.now()); age > s.maxAge {
			return fmt.Errorf("%w: age %s exceeds %s", ErrSnapshotStale, age.Round(time.Second), s.maxAge)
		}
	}
	return nil
}
