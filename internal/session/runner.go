package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/turf/internal/jobs"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// RunnerConfig configures the per-session timers.
type RunnerConfig struct {
	// TickInterval drives the speed countdown.
	TickInterval time.Duration
	// CollisionInterval is the period of the path collision check.
	CollisionInterval time.Duration
	// Logger for runner activity.
	Logger *slog.Logger
	// JobMetrics for centralized background job tracking.
	JobMetrics jobs.Reporter
}

// Runner drives a session's timers: a speed countdown tick and, in claim
// mode, the periodic path collision check. It exits on its own once the
// session ends.
type Runner struct {
	config  RunnerConfig
	session *Session
	now     func() time.Time

	mu          sync.Mutex
	running     bool
	dispatching bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewRunner creates a runner for s.
func NewRunner(config RunnerConfig, s *Session) *Runner {
	if config.TickInterval == 0 {
		config.TickInterval = time.Second
	}
	if config.CollisionInterval == 0 {
		config.CollisionInterval = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runner{
		config:  config,
		session: s,
		now:     time.Now,
	}
}

// Start begins running the timers in a background goroutine.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx, r.stopCh, r.doneCh)
	return nil
}

// Stop signals the runner to stop and waits for it to finish. While a
// timer is running session code, which includes the session hooks, Stop
// only signals: the hook may be the caller, and the loop exits as soon as
// the timer returns.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh := r.stopCh
	doneCh := r.doneCh
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	dispatching := r.dispatching
	r.mu.Unlock()

	if !dispatching {
		<-doneCh
	}
}

// IsRunning returns whether the runner is currently running.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(doneCh)
	}()

	tick := time.NewTicker(r.config.TickInterval)
	defer tick.Stop()

	var collisions <-chan time.Time
	if r.session.Mode == ModeClaim {
		t := time.NewTicker(r.config.CollisionInterval)
		defer t.Stop()
		collisions = t.C
	}

	for {
		select {
		case <-ctx.Done():
			r.config.Logger.Debug("session runner stopping due to context cancellation", "session_id", r.session.ID)
			return
		case <-stopCh:
			return
		case <-tick.C:
			r.dispatch(func() { r.session.TickWall(r.now()) })
		case <-collisions:
			r.dispatch(func() { r.checkCollisions(ctx) })
		}
		if !r.session.IsActive() {
			r.config.Logger.Debug("session runner stopping, session ended", "session_id", r.session.ID)
			return
		}
	}
}

func (r *Runner) dispatch(fn func()) {
	r.mu.Lock()
	r.dispatching = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.dispatching = false
		r.mu.Unlock()
	}()
	fn()
}

func (r *Runner) checkCollisions(ctx context.Context) {
	_, endSpan := tracing.StartJobSpan(ctx, jobs.JobTypeCollisionCheck,
		attribute.String("session.id", r.session.ID))
	start := time.Now()
	result, ok := r.session.CheckCollisions(r.now())
	endSpan(nil)
	if !ok {
		return
	}

	jobs.Finish(r.config.JobMetrics, jobs.JobTypeCollisionCheck, start, "")
	if result.Level >= territory.LevelWarning {
		r.config.Logger.Info("territory proximity warning",
			"session_id", r.session.ID,
			"level", result.Level.String(),
			"distance_meters", result.DistanceToNearest,
			"territory_id", result.TerritoryID)
	}
}
