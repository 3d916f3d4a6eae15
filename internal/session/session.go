// Package session orchestrates a single recording session: it runs samples
// through the filter, speed monitor and recorder, validates the loop on
// closure and checks the path against foreign territories.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/track"
)

var (
	// ErrSessionActive is returned when starting a session while another is active.
	ErrSessionActive = errors.New("a session is already active")
	// ErrNoActiveSession is returned when no session is active.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionEnded is returned when feeding a session that has already ended.
	ErrSessionEnded = errors.New("session has ended")
	// ErrLoopClosed is returned when feeding a claim session whose loop already closed.
	ErrLoopClosed = errors.New("loop already closed")
	// ErrNotUploadable is returned when uploading a session without a valid closed loop.
	ErrNotUploadable = errors.New("session has no valid territory to upload")
	// ErrStartInsideForeignTerritory is returned when a claim starts inside another player's territory.
	ErrStartInsideForeignTerritory = errors.New("start point is inside a foreign territory")
)

// Mode selects what a session records.
type Mode int

const (
	// ModeClaim records a loop to claim as territory.
	ModeClaim Mode = iota
	// ModeExplore tracks walked distance only.
	ModeExplore
)

// String returns the label used in logs, metrics and persisted history.
func (m Mode) String() string {
	switch m {
	case ModeClaim:
		return "claim"
	case ModeExplore:
		return "explore"
	default:
		return "unknown"
	}
}

// MarshalText encodes the mode by its label.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode parses the label produced by String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "claim":
		return ModeClaim, nil
	case "explore":
		return ModeExplore, nil
	default:
		return 0, errors.New("unknown session mode: " + s)
	}
}

// UnmarshalText decodes a label produced by MarshalText.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Status is the lifecycle status of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Failure reasons recorded for failed sessions.
const (
	FailureSpeed     = "speed_limit_exceeded"
	FailureCollision = "foreign_territory_violation"
)

// Config holds the per-session thresholds.
type Config struct {
	Filter            track.FilterConfig
	Recorder          track.RecorderConfig
	ClaimingPolicy    track.SpeedPolicy
	ExplorationPolicy track.SpeedPolicy
	// TickInterval drives the speed countdown.
	TickInterval time.Duration
	// CollisionInterval is the period of the path collision check in claim mode.
	CollisionInterval time.Duration
}

// DefaultConfig returns the default session thresholds.
func DefaultConfig() Config {
	return Config{
		Filter:            track.DefaultFilterConfig(),
		Recorder:          track.DefaultRecorderConfig(),
		ClaimingPolicy:    track.ClaimingPolicy(),
		ExplorationPolicy: track.ExplorationPolicy(),
		TickInterval:      time.Second,
		CollisionInterval: 10 * time.Second,
	}
}

// Hooks receive session events. Every field is optional. Hooks are called
// without any session lock held, so they may call back into the session or
// its Manager. When an event ends the session, the Manager has already
// detached and recorded it by the time the hooks run, and the recorded
// state is cleared once they return.
type Hooks struct {
	OnSpeed      func(s *Session, r track.SpeedReading)
	OnCollision  func(s *Session, r territory.CollisionResult)
	OnClosed     func(s *Session, v territory.Verdict)
	OnTerminated func(s *Session, reason, message string)
}

// Update is the outcome of feeding one sample to a session.
type Update struct {
	Accepted bool               `json:"accepted"`
	Reject   track.RejectReason `json:"reject,omitempty"`
	Speed    track.SpeedReading `json:"speed"`
	// Closed is true when this sample closed the loop.
	Closed  bool               `json:"closed,omitempty"`
	Verdict *territory.Verdict `json:"verdict,omitempty"`
	// Collision is the check run against the closed loop.
	Collision *territory.CollisionResult `json:"collision,omitempty"`
	// Terminated is true when this sample ended the session as failed.
	Terminated    bool   `json:"terminated,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Session is one recording session. All methods are safe for concurrent
// use; sample delivery and the timers may run on different goroutines.
type Session struct {
	ID        string
	OwnerID   string
	Mode      Mode
	StartedAt time.Time

	validator *territory.Validator
	engine    *territory.CollisionEngine
	metrics   *Metrics
	hooks     Hooks
	onEnd     func(*Session)
	wall      func() time.Time

	mu            sync.Mutex
	filter        *track.Filter
	monitor       *track.SpeedMonitor
	recorder      *track.Recorder
	status        Status
	failureReason string
	verdict       *territory.Verdict
	startCheck    territory.CollisionResult
	lastCollision territory.CollisionResult
	endedAt       time.Time
	// lastSampleAt and lastReceivedAt pair the device timestamp of the last
	// accepted sample with the wall time it arrived.
	lastSampleAt   time.Time
	lastReceivedAt time.Time
}

func newSession(id, ownerID string, mode Mode, cfg Config, startedAt time.Time,
	validator *territory.Validator, engine *territory.CollisionEngine, metrics *Metrics, hooks Hooks) *Session {
	policy := cfg.ClaimingPolicy
	if mode == ModeExplore {
		policy = cfg.ExplorationPolicy
	}
	return &Session{
		ID:        id,
		OwnerID:   ownerID,
		Mode:      mode,
		StartedAt: startedAt,
		validator: validator,
		engine:    engine,
		metrics:   metrics,
		hooks:     hooks,
		filter:    track.NewFilter(cfg.Filter),
		monitor:   track.NewSpeedMonitor(policy),
		recorder:  track.NewRecorder(cfg.Recorder),
		status:    StatusActive,
		wall:      time.Now,
	}
}

// AddSample runs s through the pipeline.
func (s *Session) AddSample(sample track.Sample) (Update, error) {
	s.mu.Lock()

	if s.status != StatusActive {
		s.mu.Unlock()
		return Update{}, ErrSessionEnded
	}
	if s.Mode == ModeClaim && s.recorder.State() == track.ClosureClosed {
		s.mu.Unlock()
		return Update{}, ErrLoopClosed
	}

	accepted, reason := s.filter.Offer(sample)
	s.observeSample(reason)
	if reason != track.RejectNone {
		s.mu.Unlock()
		return Update{Reject: reason, Speed: track.SpeedReading{State: s.monitor.State()}}, nil
	}

	if !accepted.Timestamp.IsZero() {
		s.lastSampleAt = accepted.Timestamp
		s.lastReceivedAt = s.wall()
	}

	u := Update{Accepted: true}
	u.Speed = s.monitor.Observe(accepted)
	if u.Speed.State.Kind == track.SpeedTerminated {
		s.failLocked(FailureSpeed, sample.Timestamp)
		u.Terminated = true
		u.FailureReason = FailureSpeed
		s.mu.Unlock()
		s.detach()
		s.emitSpeed(u.Speed)
		s.emitTerminated(FailureSpeed, u.Speed.Message)
		return u, nil
	}

	closed := s.recorder.Append(accepted.Point)
	if s.Mode == ModeClaim && closed {
		u.Closed = true
		points := s.recorder.Points()
		verdict := s.validator.Validate(points)
		s.verdict = &verdict
		u.Verdict = &verdict
		s.observeVerdict(verdict)

		if verdict.Valid {
			c := s.engine.CheckPath(s.OwnerID, points)
			s.lastCollision = c
			u.Collision = &c
			if c.Level == territory.LevelViolation {
				s.failLocked(FailureCollision, sample.Timestamp)
				u.Terminated = true
				u.FailureReason = FailureCollision
			}
		}
	}
	s.mu.Unlock()

	if u.Terminated {
		s.detach()
	}
	s.emitSpeed(u.Speed)
	if u.Closed {
		s.emitClosed(*u.Verdict)
	}
	if u.Collision != nil {
		s.emitCollision(*u.Collision)
	}
	if u.Terminated {
		s.emitTerminated(u.FailureReason, u.Collision.Message)
	}
	return u, nil
}

// Tick advances the speed countdown to now, given on the sample timeline.
func (s *Session) Tick(now time.Time) track.SpeedReading {
	s.mu.Lock()
	if s.status != StatusActive {
		state := s.speedStateLocked()
		s.mu.Unlock()
		return track.SpeedReading{State: state}
	}

	r := s.monitor.Tick(now)
	terminated := r.State.Kind == track.SpeedTerminated
	if terminated {
		s.failLocked(FailureSpeed, now)
	}
	s.mu.Unlock()

	if terminated {
		s.detach()
	}
	s.emitSpeed(r)
	if terminated {
		s.emitTerminated(FailureSpeed, r.Message)
	}
	return r
}

// TickWall advances the speed countdown by the wall time elapsed since the
// last accepted sample arrived, so a fix delivered late keeps its full
// grace period. It is a no-op before the first timestamped sample.
func (s *Session) TickWall(wall time.Time) track.SpeedReading {
	now, ok := s.sampleTime(wall)
	if !ok {
		return track.SpeedReading{State: s.SpeedState()}
	}
	return s.Tick(now)
}

// sampleTime maps a wall-clock instant onto the sample timeline.
func (s *Session) sampleTime(wall time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReceivedAt.IsZero() {
		return time.Time{}, false
	}
	return s.lastSampleAt.Add(wall.Sub(s.lastReceivedAt)), true
}

// CheckCollisions checks the path walked so far against foreign territories.
// It only runs for an active claim session whose loop is still open; in any
// other case ok is false.
func (s *Session) CheckCollisions(now time.Time) (result territory.CollisionResult, ok bool) {
	s.mu.Lock()
	if s.status != StatusActive || s.Mode != ModeClaim || s.recorder.State() == track.ClosureClosed || s.recorder.Len() == 0 {
		s.mu.Unlock()
		return territory.CollisionResult{}, false
	}

	result = s.engine.CheckPath(s.OwnerID, s.recorder.Points())
	s.lastCollision = result
	violation := result.Level == territory.LevelViolation
	if violation {
		s.failLocked(FailureCollision, now)
	}
	s.mu.Unlock()

	if violation {
		s.detach()
	}
	s.emitCollision(result)
	if violation {
		s.emitTerminated(FailureCollision, result.Message)
	}
	return result, true
}

// Points returns a copy of the recorded path.
func (s *Session) Points() []geo.GeoPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder.Points()
}

// Status returns the session status and, for failed sessions, the reason.
func (s *Session) Status() (Status, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.failureReason
}

// IsActive reports whether the session is still recording.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusActive
}

// Verdict returns the validation verdict, if the loop has closed.
func (s *Session) Verdict() (territory.Verdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verdict == nil {
		return territory.Verdict{}, false
	}
	return *s.verdict, true
}

// StartCheck returns the collision check run on the start point.
func (s *Session) StartCheck() territory.CollisionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCheck
}

// LastCollision returns the most recent path collision check.
func (s *Session) LastCollision() territory.CollisionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCollision
}

// SpeedState returns the speed monitor state.
func (s *Session) SpeedState() track.SpeedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speedStateLocked()
}

// speedStateLocked reports Terminated for a session failed on speed even
// after its monitor was reset.
func (s *Session) speedStateLocked() track.SpeedState {
	if s.status == StatusFailed && s.failureReason == FailureSpeed {
		return track.SpeedState{Kind: track.SpeedTerminated}
	}
	return s.monitor.State()
}

// LengthMeters returns the cumulative walked distance.
func (s *Session) LengthMeters() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder.Length()
}

// Record summarizes the session for history.
func (s *Session) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		SessionID:     s.ID,
		OwnerID:       s.OwnerID,
		Mode:          s.Mode,
		Status:        s.status,
		FailureReason: s.failureReason,
		PointCount:    s.recorder.Len(),
		LengthMeters:  s.recorder.Length(),
		StartedAt:     s.StartedAt,
		EndedAt:       s.endedAt,
	}
	if s.verdict != nil && s.verdict.Valid {
		rec.AreaSqMeters = s.verdict.Area
	}
	return rec
}

// end moves an active session to status. It reports false if the session
// had already ended.
func (s *Session) end(status Status, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return false
	}
	s.status = status
	s.endedAt = at
	return true
}

// reset clears the filter, speed monitor and recorded path. Status,
// verdict and collision results are kept for inspection.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.Reset()
	s.monitor.Reset()
	s.recorder.Reset()
}

func (s *Session) failLocked(reason string, at time.Time) {
	s.status = StatusFailed
	s.failureReason = reason
	s.endedAt = at
}

func (s *Session) observeSample(reason track.RejectReason) {
	if s.metrics != nil {
		s.metrics.IncSamples(reason.String())
	}
}

func (s *Session) observeVerdict(v territory.Verdict) {
	if s.metrics != nil {
		s.metrics.IncVerdicts(v.Reason.String())
	}
}

func (s *Session) emitSpeed(r track.SpeedReading) {
	if s.hooks.OnSpeed != nil && (r.Changed || r.Message != "") {
		s.hooks.OnSpeed(s, r)
	}
}

func (s *Session) emitCollision(r territory.CollisionResult) {
	if s.hooks.OnCollision != nil {
		s.hooks.OnCollision(s, r)
	}
}

func (s *Session) emitClosed(v territory.Verdict) {
	if s.hooks.OnClosed != nil {
		s.hooks.OnClosed(s, v)
	}
}

func (s *Session) emitTerminated(reason, message string) {
	if reason == FailureSpeed && s.metrics != nil {
		s.metrics.IncSpeedTerminations(s.Mode.String())
	}
	if s.hooks.OnTerminated != nil {
		s.hooks.OnTerminated(s, reason, message)
	}
	s.reset()
}

// detach hands a session that failed on its own back to its Manager. It
// runs before any hook sees the failure.
func (s *Session) detach() {
	if s.onEnd != nil {
		s.onEnd(s)
	}
}
