// Package jobs provides metrics for background job operations such as the
// territory snapshot refresher and the session collision timer.
package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricBackgroundJobsTotal      = "background_jobs_total"
	MetricBackgroundJobsDuration   = "background_jobs_duration_seconds"
	MetricBackgroundJobErrorsTotal = "background_job_errors_total"
)

// Job types used as the job_type label.
const (
	JobTypeSnapshotRefresh = "snapshot_refresh"
	JobTypeSnapshotPublish = "snapshot_publish"
	JobTypeCollisionCheck  = "collision_check"
	JobTypeHistoryWrite    = "history_write"
)

// Completion statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Reporter is the subset of Metrics used by background jobs. Jobs accept a
// nil Reporter when metrics are not configured.
type Reporter interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// Finish reports one job run that began at start. A non-empty errorType
// marks the run failed and counts the error under that type. A nil r is
// ignored.
func Finish(r Reporter, jobType string, start time.Time, errorType string) {
	if r == nil {
		return
	}
	r.ObserveJobDuration(jobType, time.Since(start).Seconds())
	if errorType != "" {
		r.IncJobErrors(jobType, errorType)
		r.IncJobsTotal(jobType, StatusFailure)
		return
	}
	r.IncJobsTotal(jobType, StatusSuccess)
}

// Metrics implements Reporter with Prometheus collectors.
type Metrics struct {
	jobsTotal    *prometheus.CounterVec
	jobsDuration *prometheus.HistogramVec
	jobErrors    *prometheus.CounterVec
}

// DurationBuckets spans sub-second collision checks up to slow refreshes.
var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// NewMetrics creates unregistered job metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBackgroundJobsTotal,
			Help: "Total number of background job executions by type and status",
		}, []string{"job_type", "status"}),
		jobsDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricBackgroundJobsDuration,
			Help:    "Histogram of background job duration in seconds by job type",
			Buckets: DurationBuckets,
		}, []string{"job_type"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBackgroundJobErrorsTotal,
			Help: "Total number of background job errors by type and error type",
		}, []string{"job_type", "error_type"}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncJobsTotal counts a finished job run.
func (m *Metrics) IncJobsTotal(jobType, status string) {
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
}

// ObserveJobDuration records how long a job run took.
func (m *Metrics) ObserveJobDuration(jobType string, seconds float64) {
	m.jobsDuration.WithLabelValues(jobType).Observe(seconds)
}

// IncJobErrors counts a job error, e.g. "timeout" or "database_error".
func (m *Metrics) IncJobErrors(jobType, errorType string) {
	m.jobErrors.WithLabelValues(jobType, errorType).Inc()
}

// Collectors returns the job collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.jobsTotal, m.jobsDuration, m.jobErrors}
}
