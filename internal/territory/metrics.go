package territory

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSnapshotTerritories  = "territory_snapshot_territories"
	MetricSnapshotAge          = "territory_snapshot_age_seconds"
	MetricSnapshotRefreshes    = "territory_snapshot_refreshes_total"
	MetricSnapshotCacheHits    = "territory_snapshot_cache_hits_total"
	MetricSnapshotCacheMisses  = "territory_snapshot_cache_misses_total"
	MetricCollisionChecksTotal = "territory_collision_checks_total"
)

// Metrics contains Prometheus metrics for the territory snapshot and collision engine.
// All operations are thread-safe.
type Metrics struct {
	snapshotTerritories prometheus.Gauge
	snapshotAge         prometheus.Gauge
	snapshotRefreshes   *prometheus.CounterVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	collisionChecks     *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		snapshotTerritories: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricSnapshotTerritories,
			Help: "Number of active territories in the current snapshot",
		}),
		snapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricSnapshotAge,
			Help: "Age of the current snapshot in seconds at the last refresh attempt",
		}),
		snapshotRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSnapshotRefreshes,
				Help: "Total number of snapshot refreshes by status",
			},
			[]string{"status"},
		),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSnapshotCacheHits,
			Help: "Total number of snapshot loads served from the cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSnapshotCacheMisses,
			Help: "Total number of snapshot loads that missed the cache",
		}),
		collisionChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCollisionChecksTotal,
				Help: "Total number of collision checks by check type and resulting level",
			},
			[]string{"check", "level"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// SetSnapshot records the size and age of the installed snapshot.
func (m *Metrics) SetSnapshot(territories int, ageSeconds float64) {
	m.snapshotTerritories.Set(float64(territories))
	m.snapshotAge.Set(ageSeconds)
}

// IncSnapshotRefreshes increments the refresh counter for status.
func (m *Metrics) IncSnapshotRefreshes(status string) {
	m.snapshotRefreshes.WithLabelValues(status).Inc()
}

// IncCacheHits increments the cache hit counter.
func (m *Metrics) IncCacheHits() {
	m.cacheHits.Inc()
}

// IncCacheMisses increments the cache miss counter.
func (m *Metrics) IncCacheMisses() {
	m.cacheMisses.Inc()
}

// IncCollisionChecks increments the collision check counter.
// check: "start" or "path"
func (m *Metrics) IncCollisionChecks(check string, level WarningLevel) {
	m.collisionChecks.WithLabelValues(check, level.String()).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.snapshotTerritories,
		m.snapshotAge,
		m.snapshotRefreshes,
		m.cacheHits,
		m.cacheMisses,
		m.collisionChecks,
	}
}
