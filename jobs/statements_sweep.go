package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-statements/internal/jobs"
	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// ReportLister enumerates the reports a sweep covers.
type ReportLister interface {
	ListReportIDs(ctx context.Context) ([]int64, error)
}

// SweepJob recomputes the running period of every report. Periods whose
// inputs did not change since their last run are skipped by the service.
type SweepJob struct {
	Service StatementsService
	Reports ReportLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
	clock   func() time.Time
}

// NewSweepJob wires dependencies for the sweep handler.
func NewSweepJob(service StatementsService, reports ReportLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return &SweepJob{
		Service: service,
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		Timeout: 10 * time.Minute,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskStatementsSweep.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil || j.Reports == nil {
		return errors.New("statements sweep: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	periodType := statements.PeriodType(payload.PeriodType)
	if periodType == "" {
		periodType = statements.PeriodMonthly
	}

	tracker := j.metrics().Track(TaskStatementsSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("period_type", string(periodType)))
	ids, err := j.Reports.ListReportIDs(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list reports", slog.Any("error", err))
		return resultErr
	}
	if len(ids) == 0 {
		logger.Info("no reports to sweep")
		return resultErr
	}

	now := j.now()
	reqs := make([]recompute.Request, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, recompute.Request{ReportID: id, PeriodType: periodType, Date: now})
	}
	sweepCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		sweepCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	runs, err := j.Service.RecomputeMany(sweepCtx, reqs)
	if err != nil {
		resultErr = err
		logger.Error("sweep reports", slog.Any("error", err))
		return resultErr
	}
	computed := 0
	for _, run := range runs {
		j.metrics().ObservePeriod(run.UpToDate)
		if !run.UpToDate {
			computed++
		}
	}
	logger.Info("completed statements sweep",
		slog.Int("reports", len(runs)),
		slog.Int("computed", computed),
		slog.Duration("duration", j.now().Sub(now)),
	)
	return resultErr
}

func (j *SweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatementsSweep))
	}
	return slog.Default().With(slog.String("job", TaskStatementsSweep))
}

func (j *SweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *SweepJob) WithClock(clock func() time.Time) {
	if clock != nil {
		j.clock = clock
	}
}
