package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/engine"
)

// Metrics exposes Prometheus collectors for background jobs and the cells
// they compute.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cells    *prometheus.CounterVec
	periods  *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// ObserveCell counts one engine cell outcome. It satisfies engine.Observer.
func (m *Metrics) ObserveCell(kind statements.ReportKind, outcome engine.Outcome) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = statements.KindStandard
	}
	m.cells.WithLabelValues(string(kind), string(outcome)).Inc()
}

// ObservePeriod counts a period run, split by whether a batch actually ran.
func (m *Metrics) ObservePeriod(upToDate bool) {
	if m == nil {
		return
	}
	result := "computed"
	if upToDate {
		result = "up_to_date"
	}
	m.periods.WithLabelValues(result).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	cells := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_statements_cells_total",
		Help: "Statement cells processed grouped by report kind and outcome.",
	}, []string{"kind", "outcome"})
	periods := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_statements_periods_total",
		Help: "Statement periods processed grouped by result.",
	}, []string{"result"})
	registerer.MustRegister(runs, failures, duration, cells, periods)
	return &Metrics{runs: runs, failures: failures, duration: duration, cells: cells, periods: periods}
}
