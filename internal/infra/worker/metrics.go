package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the scheduler's three
// scan-then-publish sweeps (spec §4.4: crawl_feeds, crawl_articles,
// scrape_articles). Adapted from the teacher's cron-job WorkerMetrics —
// same counter/histogram/gauge shape, renamed off "cron job" onto "sweep"
// and labeled by sweep name instead of hardcoding a single job.
type WorkerMetrics struct {
	// SweepRunsTotal counts sweep runs by sweep name and status
	// (success/failure).
	SweepRunsTotal *prometheus.CounterVec

	// SweepDurationSeconds measures one sweep's scan-then-publish duration.
	SweepDurationSeconds *prometheus.HistogramVec

	// SweepResourcesQueuedTotal counts resources queued for crawl or scrape,
	// by sweep name.
	SweepResourcesQueuedTotal *prometheus.CounterVec

	// SweepLastSuccessTimestamp records the Unix timestamp of each sweep's
	// last successful run, by sweep name.
	SweepLastSuccessTimestamp *prometheus.GaugeVec
}

// NewWorkerMetrics creates a WorkerMetrics with all series registered via
// promauto.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		SweepRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_sweep_runs_total",
			Help: "Total number of scheduler sweep runs by sweep name and status (success/failure)",
		}, []string{"sweep", "status"}),

		SweepDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_sweep_duration_seconds",
			Help:    "Duration of a scheduler sweep's scan-then-publish pass",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"sweep"}),

		SweepResourcesQueuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_sweep_resources_queued_total",
			Help: "Total number of resources queued for crawl or scrape across all sweeps",
		}, []string{"sweep"}),

		SweepLastSuccessTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_sweep_last_success_timestamp",
			Help: "Unix timestamp of each sweep's last successful run",
		}, []string{"sweep"}),
	}
}

// RecordSweepRun increments the sweep-run counter for the given sweep name
// and status ("success" or "failure").
func (m *WorkerMetrics) RecordSweepRun(sweep, status string) {
	m.SweepRunsTotal.WithLabelValues(sweep, status).Inc()
}

// RecordSweepDuration observes a sweep's scan-then-publish duration in
// seconds.
func (m *WorkerMetrics) RecordSweepDuration(sweep string, seconds float64) {
	m.SweepDurationSeconds.WithLabelValues(sweep).Observe(seconds)
}

// RecordResourcesQueued adds the number of resources a sweep queued for
// crawl or scrape.
func (m *WorkerMetrics) RecordResourcesQueued(sweep string, count int) {
	m.SweepResourcesQueuedTotal.WithLabelValues(sweep).Add(float64(count))
}

// RecordLastSuccess records the current time as a sweep's last successful
// run.
func (m *WorkerMetrics) RecordLastSuccess(sweep string) {
	m.SweepLastSuccessTimestamp.WithLabelValues(sweep).SetToCurrentTime()
}
