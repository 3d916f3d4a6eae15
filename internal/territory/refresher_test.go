package territory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/turf/internal/jobs"
)

type recordingJobMetrics struct {
	mu       sync.Mutex
	totals   map[string]int
	errors   map[string]int
	observed int
}

func newRecordingJobMetrics() *recordingJobMetrics {
	return &recordingJobMetrics{totals: map[string]int{}, errors: map[string]int{}}
}

func (m *recordingJobMetrics) IncJobsTotal(jobType, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[jobType+"/"+status]++
}

func (m *recordingJobMetrics) ObserveJobDuration(string, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed++
}

func (m *recordingJobMetrics) IncJobErrors(jobType, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[jobType+"/"+errorType]++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefresherRefresh(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{list: []*Territory{square("t-1", "bob", 0, 0, 100)}}
	store := NewSnapshotStore()
	jm := newRecordingJobMetrics()

	var hooked *Snapshot
	r := NewRefresher(RefresherConfig{
		Logger:     quietLogger(),
		Metrics:    NewMetrics(),
		JobMetrics: jm,
		OnRefresh: func(_ context.Context, s *Snapshot) error {
			hooked = s
			return nil
		},
	}, source, store)

	snap, err := r.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if snap.Len() != 1 || store.Load() != snap || hooked != snap {
		t.Errorf("Refresh() did not install and publish the snapshot")
	}
	if jm.totals[jobs.JobTypeSnapshotRefresh+"/"+jobs.StatusSuccess] != 1 {
		t.Errorf("job totals = %v", jm.totals)
	}
}

func TestRefresherKeepsPreviousSnapshotOnError(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{list: []*Territory{square("t-1", "bob", 0, 0, 100)}}
	store := NewSnapshotStore()
	jm := newRecordingJobMetrics()
	r := NewRefresher(RefresherConfig{Logger: quietLogger(), JobMetrics: jm}, source, store)

	good, err := r.Refresh(ctx)
	if err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}

	source.err = errors.New("db down")
	if _, err := r.Refresh(ctx); err == nil {
		t.Fatal("Refresh() with failing source returned no error")
	}
	if store.Load() != good {
		t.Error("failed refresh replaced the previous snapshot")
	}
	if jm.errors[jobs.JobTypeSnapshotRefresh+"/source_error"] != 1 {
		t.Errorf("job errors = %v", jm.errors)
	}
	if jm.totals[jobs.JobTypeSnapshotRefresh+"/"+jobs.StatusFailure] != 1 {
		t.Errorf("job totals = %v", jm.totals)
	}
}

func TestRefresherStartStop(t *testing.T) {
	source := &countingSource{}
	store := NewSnapshotStore()
	r := NewRefresher(RefresherConfig{
		Interval: 10 * time.Millisecond,
		Logger:   quietLogger(),
	}, source, store)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !r.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	// A second Start is a no-op.
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for source.Calls() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()

	if r.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if got := source.Calls(); got < 3 {
		t.Errorf("source called %d times, want at least 3", got)
	}

	after := source.Calls()
	time.Sleep(30 * time.Millisecond)
	if source.Calls() != after {
		t.Error("refresher kept running after Stop")
	}

	// Stop on a stopped refresher is a no-op.
	r.Stop()
}

func TestRefresherStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRefresher(RefresherConfig{Interval: time.Hour, Logger: quietLogger()}, &countingSource{}, NewSnapshotStore())

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	select {
	case <-r.doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not exit after context cancellation")
	}
}

type countingSource struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSource) ListActive(context.Context) ([]*Territory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil, nil
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
