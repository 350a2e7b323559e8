package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-statements/internal/jobs"
	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// ConsolidateJob rebuilds group reports from their member businesses.
type ConsolidateJob struct {
	Service StatementsService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewConsolidateJob constructs the job handler.
func NewConsolidateJob(service StatementsService, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolidateJob {
	return &ConsolidateJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes TaskStatementsConsolidate. An empty month means the
// previous calendar month.
func (j *ConsolidateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("statements consolidate: dependencies not configured")
	}
	var payload ConsolidatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	month, err := j.resolveMonth(payload.Month)
	if err != nil {
		j.log().Warn("drop consolidate task", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskStatementsConsolidate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	run, err := j.Service.Consolidate(ctx, recompute.GroupRequest{
		TargetReportID:  payload.TargetReportID,
		SourceReportIDs: payload.SourceReportIDs,
		Month:           month,
	})
	if err != nil {
		resultErr = permanent(err)
		j.log().Error("consolidate reports",
			slog.Int64("target_report_id", payload.TargetReportID),
			slog.String("month", month.Format("2006-01")),
			slog.Any("error", err),
		)
		return resultErr
	}
	j.log().Info("consolidated reports",
		slog.String("run_id", run.ID),
		slog.Int64("target_report_id", payload.TargetReportID),
		slog.Int("sources", len(payload.SourceReportIDs)),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

func (j *ConsolidateJob) resolveMonth(month string) (time.Time, error) {
	if month == "" || month == "previous" {
		return statements.MonthStart(j.now()).AddDate(0, -1, 0), nil
	}
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q", month)
	}
	return t, nil
}

func (j *ConsolidateJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ConsolidateJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatementsConsolidate))
	}
	return slog.Default().With(slog.String("job", TaskStatementsConsolidate))
}

func (j *ConsolidateJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ConsolidateJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
