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
)

// StatementsService describes the recompute operations jobs drive.
type StatementsService interface {
	Recompute(ctx context.Context, req recompute.Request) (*recompute.Run, error)
	RecomputeYear(ctx context.Context, req recompute.YearRequest) ([]*recompute.Run, error)
	RecomputeMany(ctx context.Context, reqs []recompute.Request) ([]*recompute.Run, error)
	Consolidate(ctx context.Context, req recompute.GroupRequest) (*recompute.Run, error)
}

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RecomputeJob computes statement periods queued by the sync pipeline.
type RecomputeJob struct {
	Service StatementsService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRecomputeJob constructs the job handler.
func NewRecomputeJob(service StatementsService, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecomputeJob {
	return &RecomputeJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes TaskStatementsRecompute.
func (j *RecomputeJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("statements recompute: dependencies not configured")
	}
	var payload RecomputePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	req, err := payload.Request()
	if err != nil {
		j.log(TaskStatementsRecompute).Warn("drop recompute task", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskStatementsRecompute)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	run, err := j.Service.Recompute(ctx, req)
	if err != nil {
		resultErr = permanent(err)
		j.log(TaskStatementsRecompute).Error("recompute period",
			slog.Int64("report_id", req.ReportID),
			slog.String("date", payload.Date),
			slog.Any("error", err),
		)
		return resultErr
	}
	j.metrics().ObservePeriod(run.UpToDate)
	j.log(TaskStatementsRecompute).Info("recomputed period",
		slog.String("run_id", run.ID),
		slog.Int64("report_id", req.ReportID),
		slog.Bool("up_to_date", run.UpToDate),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

// HandleYear executes TaskStatementsRecomputeYear.
func (j *RecomputeJob) HandleYear(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("statements recompute: dependencies not configured")
	}
	var payload RecomputeYearPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Year == 0 {
		payload.Year = j.now().Year()
	}

	tracker := j.metrics().Track(TaskStatementsRecomputeYear)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	runs, err := j.Service.RecomputeYear(ctx, recompute.YearRequest{
		ReportID: payload.ReportID,
		Year:     payload.Year,
		Force:    payload.Force,
	})
	for _, run := range runs {
		j.metrics().ObservePeriod(run.UpToDate)
	}
	if err != nil {
		resultErr = permanent(err)
		j.log(TaskStatementsRecomputeYear).Error("recompute year",
			slog.Int64("report_id", payload.ReportID),
			slog.Int("year", payload.Year),
			slog.Int("months_done", len(runs)),
			slog.Any("error", err),
		)
		return resultErr
	}
	j.log(TaskStatementsRecomputeYear).Info("recomputed year",
		slog.Int64("report_id", payload.ReportID),
		slog.Int("year", payload.Year),
		slog.Int("months", len(runs)),
	)
	return resultErr
}

// permanent marks errors a retry cannot fix.
func permanent(err error) error {
	if errors.Is(err, recompute.ErrInvalidRequest) || errors.Is(err, recompute.ErrNotFound) {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return err
}

func (j *RecomputeJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RecomputeJob) log(task string) *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *RecomputeJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *RecomputeJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
