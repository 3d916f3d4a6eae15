package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/jobs"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/track"
)

// DefaultHistoryTimeout bounds a history write for a session that ended on
// its own.
const DefaultHistoryTimeout = 5 * time.Second

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Session Config
	// Validator judges closed loops.
	Validator *territory.Validator
	// Engine checks start points and paths against foreign territories.
	Engine *territory.CollisionEngine
	// Territories receives uploaded territories.
	Territories territory.Repository
	// History, if set, stores every ended session.
	History History
	// Hooks receive session events.
	Hooks Hooks
	// OnUploaded, if set, is called after a territory is stored.
	OnUploaded func(ctx context.Context, t *territory.Territory)
	// RunTimers starts a Runner for every session.
	RunTimers bool

	Logger     *slog.Logger
	Metrics    *Metrics
	JobMetrics jobs.Reporter
}

// Manager owns the single active session.
type Manager struct {
	config ManagerConfig
	now    func() time.Time
	newID  func() string

	mu     sync.Mutex
	active *Session
	runner *Runner
}

// NewManager creates a manager.
func NewManager(config ManagerConfig) *Manager {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Validator == nil {
		config.Validator = territory.NewValidator(territory.DefaultValidatorConfig())
	}
	if config.Territories == nil {
		config.Territories = territory.NewInMemoryRepository()
	}
	if config.Engine == nil {
		config.Engine = territory.NewCollisionEngine(territory.NewSnapshotStore(), territory.DefaultProximityBands(), nil)
	}
	return &Manager{
		config: config,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Active returns the active session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Start begins a session for ownerID at origin. In claim mode the origin is
// checked first; starting inside a foreign territory fails with
// ErrStartInsideForeignTerritory and the returned session is nil.
func (m *Manager) Start(ctx context.Context, ownerID string, mode Mode, origin geo.GeoPoint) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrSessionActive
	}

	var check territory.CollisionResult
	if mode == ModeClaim {
		check = m.config.Engine.CheckStart(ownerID, origin)
		if check.Level == territory.LevelViolation {
			m.config.Logger.Info("claim start rejected",
				"owner_id", ownerID,
				"territory_id", check.TerritoryID)
			return nil, fmt.Errorf("%w: %s", ErrStartInsideForeignTerritory, check.Message)
		}
	}

	s := newSession(m.newID(), ownerID, mode, m.config.Session, m.now(),
		m.config.Validator, m.config.Engine, m.config.Metrics, m.config.Hooks)
	s.startCheck = check
	s.onEnd = m.ended

	m.active = s
	if m.config.Metrics != nil {
		m.config.Metrics.ObserveSessionStarted()
	}

	if m.config.RunTimers {
		m.runner = NewRunner(RunnerConfig{
			TickInterval:      m.config.Session.TickInterval,
			CollisionInterval: m.config.Session.CollisionInterval,
			Logger:            m.config.Logger,
			JobMetrics:        m.config.JobMetrics,
		}, s)
		if err := m.runner.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
	}

	m.config.Logger.Info("session started",
		"session_id", s.ID,
		"owner_id", ownerID,
		"mode", mode.String())
	return s, nil
}

// AddSample feeds a sample to the active session.
func (m *Manager) AddSample(sample track.Sample) (Update, error) {
	s := m.Active()
	if s == nil {
		return Update{}, ErrNoActiveSession
	}
	return s.AddSample(sample)
}

// Stop ends the active session as completed and clears its path. A session
// that already failed keeps its failed status. Stop may be called from a
// session hook.
func (m *Manager) Stop(ctx context.Context) (Record, error) {
	return m.finish(ctx, StatusCompleted, "")
}

// Cancel ends the active session as cancelled and clears its path. Like
// Stop, it may be called from a session hook.
func (m *Manager) Cancel(ctx context.Context) (Record, error) {
	return m.finish(ctx, StatusCancelled, "")
}

// Upload stores the active session's closed loop as a territory and ends
// the session as completed.
func (m *Manager) Upload(ctx context.Context) (*territory.Territory, error) {
	s := m.Active()
	if s == nil {
		return nil, ErrNoActiveSession
	}
	if s.Mode != ModeClaim || !s.IsActive() {
		return nil, ErrNotUploadable
	}
	verdict, ok := s.Verdict()
	if !ok || !verdict.Valid {
		return nil, ErrNotUploadable
	}

	t := territory.NewTerritory(m.newID(), s.OwnerID, s.Points(), verdict.Area, m.now())
	if err := m.config.Territories.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to upload territory: %w", err)
	}

	m.config.Logger.Info("territory uploaded",
		"session_id", s.ID,
		"territory_id", t.ID,
		"owner_id", t.OwnerID,
		"area_sq_meters", t.Area,
		"points", t.PointCount)

	if _, err := m.finish(ctx, StatusCompleted, t.ID); err != nil && !errors.Is(err, ErrNoActiveSession) {
		return t, err
	}
	if m.config.OnUploaded != nil {
		m.config.OnUploaded(ctx, t)
	}
	return t, nil
}

// finish detaches the active session, stops its timers and records it.
func (m *Manager) finish(ctx context.Context, status Status, territoryID string) (Record, error) {
	m.mu.Lock()
	s, runner := m.active, m.runner
	m.active, m.runner = nil, nil
	m.mu.Unlock()

	if s == nil {
		return Record{}, ErrNoActiveSession
	}
	if runner != nil {
		runner.Stop()
	}

	s.end(status, m.now())
	rec := s.Record()
	rec.TerritoryID = territoryID
	s.reset()
	return rec, m.record(ctx, rec)
}

// ended is called by a session that failed on its own, before its hooks
// run. Once it returns the session is no longer active, so a hook calling
// Stop or Cancel gets ErrNoActiveSession instead of waiting on the timers
// that are running the hook.
func (m *Manager) ended(s *Session) {
	m.mu.Lock()
	if m.active != s {
		m.mu.Unlock()
		return
	}
	m.active, m.runner = nil, nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultHistoryTimeout)
	defer cancel()
	_ = m.record(ctx, s.Record())
}

func (m *Manager) record(ctx context.Context, rec Record) error {
	if m.config.Metrics != nil {
		m.config.Metrics.ObserveSessionEnded(rec.Mode, rec.Status)
	}
	m.config.Logger.Info("session ended",
		"session_id", rec.SessionID,
		"mode", rec.Mode.String(),
		"status", string(rec.Status),
		"failure_reason", rec.FailureReason,
		"length_meters", rec.LengthMeters,
		"points", rec.PointCount)

	if m.config.History == nil {
		return nil
	}

	start := time.Now()
	err := m.config.History.Save(ctx, rec)
	if err != nil {
		jobs.Finish(m.config.JobMetrics, jobs.JobTypeHistoryWrite, start, "database_error")
		m.config.Logger.Error("failed to record session", "session_id", rec.SessionID, "error", err)
		return fmt.Errorf("failed to record session: %w", err)
	}
	jobs.Finish(m.config.JobMetrics, jobs.JobTypeHistoryWrite, start, "")
	return nil
}
