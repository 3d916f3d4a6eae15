package territory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/turf/internal/jobs"
	"github.com/onnwee/turf/internal/tracing"
)

// DefaultRefreshInterval is the default interval between snapshot refreshes.
const DefaultRefreshInterval = 30 * time.Second

// DefaultRefreshTimeout is the default timeout for loading one snapshot.
const DefaultRefreshTimeout = 10 * time.Second

// RefresherConfig configures the snapshot refresher.
type RefresherConfig struct {
	// Interval is the duration between refreshes when running periodically.
	Interval time.Duration
	// Timeout bounds a single load from the source.
	Timeout time.Duration
	// Logger for refresher activity.
	Logger *slog.Logger
	// Metrics for snapshot size and cache tracking.
	Metrics *Metrics
	// JobMetrics for centralized background job tracking.
	JobMetrics jobs.Reporter
	// OnRefresh, if set, is called with every newly installed snapshot.
	OnRefresh func(ctx context.Context, s *Snapshot) error
}

// Refresher loads active territories from a source and swaps a new snapshot
// into the store, either on demand or on a fixed interval.
type Refresher struct {
	config RefresherConfig
	source Source
	store  *SnapshotStore
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefresher creates a refresher.
func NewRefresher(config RefresherConfig, source Source, store *SnapshotStore) *Refresher {
	if config.Interval == 0 {
		config.Interval = DefaultRefreshInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultRefreshTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Refresher{
		config: config,
		source: source,
		store:  store,
		now:    time.Now,
	}
}

// Refresh loads the active territories and installs a new snapshot. On
// failure the previous snapshot stays in place.
func (r *Refresher) Refresh(parentCtx context.Context) (snap *Snapshot, err error) {
	ctx, cancel := context.WithTimeout(parentCtx, r.config.Timeout)
	defer cancel()

	ctx, endSpan := tracing.StartJobSpan(ctx, jobs.JobTypeSnapshotRefresh)
	defer func() { endSpan(err) }()

	start := time.Now()
	list, err := r.source.ListActive(ctx)
	if err != nil {
		errType := "source_error"
		if ctx.Err() != nil {
			errType = "timeout"
		}
		jobs.Finish(r.config.JobMetrics, jobs.JobTypeSnapshotRefresh, start, errType)
		r.config.Logger.Error("failed to refresh territory snapshot", "error", err, "error_type", errType)
		if r.config.Metrics != nil {
			prev := r.store.Load()
			r.config.Metrics.IncSnapshotRefreshes(jobs.StatusFailure)
			r.config.Metrics.SetSnapshot(prev.Len(), prev.Age(r.now()).Seconds())
		}
		return nil, fmt.Errorf("failed to refresh territory snapshot: %w", err)
	}
	duration := time.Since(start).Seconds()
	jobs.Finish(r.config.JobMetrics, jobs.JobTypeSnapshotRefresh, start, "")

	snap = NewSnapshot(list, r.now())
	r.store.Swap(snap)
	if r.config.Metrics != nil {
		r.config.Metrics.IncSnapshotRefreshes(jobs.StatusSuccess)
		r.config.Metrics.SetSnapshot(snap.Len(), 0)
	}

	r.config.Logger.Debug("territory snapshot refreshed",
		"territories", snap.Len(),
		"duration_seconds", duration)

	if r.config.OnRefresh != nil {
		if hookErr := r.config.OnRefresh(ctx, snap); hookErr != nil {
			r.config.Logger.Warn("snapshot refresh hook failed", "error", hookErr)
		}
	}
	return snap, nil
}

// Start refreshes once and then keeps refreshing every interval.
// Returns immediately; the refresher runs in a background goroutine.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx)
	return nil
}

// Stop signals the refresher to stop and waits for it to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// IsRunning returns whether the refresher is currently running.
func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.doneCh)

	_, _ = r.Refresh(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.config.Logger.Info("snapshot refresher stopping due to context cancellation")
			return
		case <-r.stopCh:
			r.config.Logger.Info("snapshot refresher stopping due to stop signal")
			return
		case <-ticker.C:
			_, _ = r.Refresh(ctx)
		}
	}
}
