package session

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetrics_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		m := NewMetrics()
		reg := prometheus.NewRegistry()

		if err := m.Register(reg); err != nil {
			t.Fatalf("Register() returned error: %v", err)
		}

		m.IncSamples("accepted")
		m.IncSpeedTerminations("claim")
		m.IncVerdicts("valid")
		m.ObserveSessionStarted()
		m.ObserveSessionEnded(ModeClaim, StatusCompleted)

		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("Gather() returned error: %v", err)
		}

		expectedNames := map[string]bool{
			MetricSamplesTotal:           false,
			MetricSpeedTerminationsTotal: false,
			MetricVerdictsTotal:          false,
			MetricSessionsTotal:          false,
			MetricActiveSessions:         false,
		}
		for _, family := range families {
			if _, ok := expectedNames[family.GetName()]; ok {
				expectedNames[family.GetName()] = true
			}
		}
		for name, found := range expectedNames {
			if !found {
				t.Errorf("metric %s not found in gathered metrics", name)
			}
		}
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		if err := NewMetrics().Register(reg); err != nil {
			t.Fatalf("first Register() returned error: %v", err)
		}
		if err := NewMetrics().Register(reg); err == nil {
			t.Error("second Register() should have returned an error")
		}
	})
}

func TestMetrics_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ManagerConfig{})

	if _, err := f.manager.Start(ctx, "alice", ModeExplore, origin); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := gaugeValue(f.metrics.active); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}

	if _, err := f.manager.Cancel(ctx); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if got := gaugeValue(f.metrics.active); got != 0 {
		t.Errorf("active sessions = %v, want 0", got)
	}
	if got := counterValue(f.metrics.sessions.WithLabelValues("explore", "cancelled")); got != 1 {
		t.Errorf("explore/cancelled sessions = %v, want 1", got)
	}
}

func TestMetrics_Verdicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ManagerConfig{})
	samples := loopSamples()

	if _, err := f.manager.Start(ctx, "alice", ModeClaim, samples[0].Point); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for _, smp := range samples {
		if _, err := f.manager.AddSample(smp); err != nil {
			t.Fatalf("AddSample() error = %v", err)
		}
	}
	if got := counterValue(f.metrics.verdicts.WithLabelValues("valid")); got != 1 {
		t.Errorf("valid verdicts = %v, want 1", got)
	}
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return -1
	}
	return m.GetGauge().GetValue()
}
