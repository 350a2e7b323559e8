// Package recompute schedules statement batches against persisted inputs: it
// loads snapshots, tracks the update state of each period and stores the
// computed grids.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/aggregate"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/engine"
)

// Run describes one recompute of a period.
type Run struct {
	ID    string                 `json:"id"`
	Data  *statements.ReportData `json:"data"`
	Cells engine.Result          `json:"cells"`
	// UpToDate is set when the stored grid was newer than every input.
	UpToDate bool `json:"up_to_date"`
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDriver replaces the default engine driver.
func WithDriver(driver *engine.Driver) Option {
	return func(s *Service) {
		if driver != nil {
			s.driver = driver
		}
	}
}

// WithParallelism bounds the batches RecomputeMany runs at once.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service coordinates stores, the engine and the grid cache.
type Service struct {
	store       Store
	cache       *Cache
	driver      *engine.Driver
	aggregator  *aggregate.Aggregator
	group       singleflight.Group
	parallelism int
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires a Store with a Cache helper.
func NewService(store Store, cache *Cache, opts ...Option) *Service {
	s := &Service{
		store:       store,
		cache:       cache,
		parallelism: 4,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.driver == nil {
		s.driver = engine.NewDriver(engine.WithLogger(s.logger))
	}
	s.aggregator = aggregate.New(s.driver)
	return s
}

// Recompute computes one period. Concurrent calls for the same period share
// a single batch.
func (s *Service) Recompute(ctx context.Context, req Request) (*Run, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	start, _ := req.Bounds()
	key := fmt.Sprintf("%d:%s:%s:%t", req.ReportID, req.PeriodType, start.Format(time.DateOnly), req.Force)
	// Shared by every waiter; a cancelled caller only stops its own wait.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.recompute(shared, req)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Run), nil
	}
}

func (s *Service) recompute(ctx context.Context, req Request) (*Run, error) {
	run := &Run{ID: uuid.NewString()}
	start, end := req.Bounds()
	logger := s.logger.With(
		slog.String("run_id", run.ID),
		slog.Int64("report_id", req.ReportID),
		slog.String("period_type", string(req.PeriodType)),
		slog.String("start", start.Format(time.DateOnly)),
	)

	report, err := s.store.LoadReport(ctx, req.ReportID)
	if err != nil {
		return nil, fmt.Errorf("recompute: load report %d: %w", req.ReportID, err)
	}
	data, err := s.store.FindPeriod(ctx, report.ID, req.PeriodType, start, end)
	if errors.Is(err, ErrNotFound) {
		data = &statements.ReportData{
			ReportID:   report.ID,
			BusinessID: report.BusinessID,
			PeriodType: req.PeriodType,
			StartDate:  start,
			EndDate:    end,
		}
	} else if err != nil {
		return nil, fmt.Errorf("recompute: find period: %w", err)
	}
	run.Data = data

	snap, err := s.snapshot(ctx, report, req.PeriodType, start, end)
	if err != nil {
		return nil, err
	}
	if !req.Force && data.ID != 0 && !statements.ShouldRecompute(data, snap.InputsUpdatedAt()) {
		logger.Debug("statements period up to date")
		run.UpToDate = true
		return run, nil
	}

	if err := s.transition(ctx, data, statements.StateStarted, ""); err != nil {
		return nil, err
	}
	cells, err := s.driver.Run(snap, data)
	if err != nil {
		logger.Error("statements batch failed", slog.Any("error", err))
		if markErr := s.transition(ctx, data, statements.StateFailed, err.Error()); markErr != nil {
			return nil, errors.Join(err, markErr)
		}
		return nil, err
	}
	run.Cells = cells

	data.UpdateState = statements.StateFinished
	data.ErrorMsg = ""
	data.UpdatedAt = s.now()
	if err := s.store.SavePeriod(ctx, data); err != nil {
		return nil, fmt.Errorf("recompute: save period: %w", err)
	}
	if err := s.cache.Bump(ctx, report.ID); err != nil {
		logger.Warn("statements cache bump failed", slog.Any("error", err))
	}
	logger.Info("statements period computed",
		slog.Int64("data_id", data.ID),
		slog.Int("computed", cells.Computed),
		slog.Int("skipped", cells.Skipped),
	)
	return run, nil
}

// snapshot loads the inputs of a period plus the neighbouring periods the
// strategies read from.
func (s *Service) snapshot(ctx context.Context, report *statements.Report, periodType statements.PeriodType, start, end time.Time) (*statements.Snapshot, error) {
	snap, err := s.store.LoadInputs(ctx, report, periodType, start, end)
	if err != nil {
		return nil, fmt.Errorf("recompute: load inputs: %w", err)
	}
	snap.Report = report
	snap.Today = s.now()

	prevStart, prevEnd := Request{PeriodType: periodType, Date: start.AddDate(0, 0, -1)}.Bounds()
	if snap.PreviousPeriod, err = s.optionalPeriod(ctx, report.ID, periodType, prevStart, prevEnd); err != nil {
		return nil, err
	}
	priorStart, priorEnd := Request{PeriodType: periodType, Date: start.AddDate(-1, 0, 0)}.Bounds()
	if snap.PriorYear, err = s.optionalPeriod(ctx, report.ID, periodType, priorStart, priorEnd); err != nil {
		return nil, err
	}
	janStart, janEnd := Request{PeriodType: statements.PeriodMonthly, Date: statements.YearStart(start)}.Bounds()
	if periodType != statements.PeriodMonthly || !janStart.Equal(start) {
		if snap.JanuaryOfYear, err = s.optionalPeriod(ctx, report.ID, statements.PeriodMonthly, janStart, janEnd); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *Service) optionalPeriod(ctx context.Context, reportID int64, periodType statements.PeriodType, start, end time.Time) (*statements.ReportData, error) {
	data, err := s.store.FindPeriod(ctx, reportID, periodType, start, end)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recompute: find period %s: %w", start.Format(time.DateOnly), err)
	}
	return data, nil
}

// transition validates and records an update state change. Periods not yet
// persisted are inserted.
func (s *Service) transition(ctx context.Context, data *statements.ReportData, to statements.UpdateState, errorMsg string) error {
	if err := statements.ValidateTransition(data.UpdateState, to); err != nil {
		return err
	}
	data.UpdateState = to
	data.ErrorMsg = errorMsg
	if data.ID == 0 {
		data.UpdatedAt = s.now()
		return s.store.SavePeriod(ctx, data)
	}
	return s.store.UpdateState(ctx, data.ID, to, errorMsg)
}

// RecomputeYear computes every month of the year in order, stopping at the
// current month. Months run sequentially since each carries the previous
// month's running totals.
func (s *Service) RecomputeYear(ctx context.Context, req YearRequest) ([]*Run, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	now := s.now()
	var runs []*Run
	for m := time.January; m <= time.December; m++ {
		month := time.Date(req.Year, m, 1, 0, 0, 0, 0, time.UTC)
		if month.After(now) {
			break
		}
		run, err := s.Recompute(ctx, Request{
			ReportID:   req.ReportID,
			PeriodType: statements.PeriodMonthly,
			Date:       month,
			Force:      req.Force,
		})
		if err != nil {
			return runs, fmt.Errorf("recompute: %s %d: %w", m, req.Year, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// RecomputeMany computes independent periods concurrently. Results keep the
// order of reqs.
func (s *Service) RecomputeMany(ctx context.Context, reqs []Request) ([]*Run, error) {
	runs := make([]*Run, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, req := range reqs {
		g.Go(func() error {
			run, err := s.Recompute(gctx, req)
			if err != nil {
				return fmt.Errorf("report %d: %w", req.ReportID, err)
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Rollup derives the grid of an arbitrary window from its monthly periods.
// Results are cached until the report's next recompute.
func (s *Service) Rollup(ctx context.Context, req RangeRequest) (*statements.ReportData, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	report, err := s.store.LoadReport(ctx, req.ReportID)
	if err != nil {
		return nil, fmt.Errorf("recompute: load report %d: %w", req.ReportID, err)
	}
	key, err := s.cache.GridKey(ctx, report.ID, statements.PeriodRange, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	var out statements.ReportData
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		months, err := s.store.ListMonths(ctx, report.ID, statements.MonthStart(req.Start), req.End)
		if err != nil {
			return nil, err
		}
		beforeStart, beforeEnd := Request{PeriodType: statements.PeriodMonthly, Date: statements.MonthStart(req.Start).AddDate(0, 0, -1)}.Bounds()
		before, err := s.optionalPeriod(ctx, report.ID, statements.PeriodMonthly, beforeStart, beforeEnd)
		if err != nil {
			return nil, err
		}
		snap := &statements.Snapshot{Report: report, Today: s.now()}
		return s.aggregator.Period(snap, aggregate.Window{Start: req.Start, End: req.End}, months, before)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Consolidate merges the month of every source report into the target
// report and stores the result.
func (s *Service) Consolidate(ctx context.Context, req GroupRequest) (*Run, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	run := &Run{ID: uuid.NewString()}
	logger := s.logger.With(slog.String("run_id", run.ID), slog.Int64("report_id", req.TargetReportID))
	start, end := Request{PeriodType: statements.PeriodMonthly, Date: req.Month}.Bounds()

	target, err := s.store.LoadReport(ctx, req.TargetReportID)
	if err != nil {
		return nil, fmt.Errorf("recompute: load report %d: %w", req.TargetReportID, err)
	}
	sources := make([]aggregate.Source, 0, len(req.SourceReportIDs))
	for _, id := range req.SourceReportIDs {
		report, err := s.store.LoadReport(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("recompute: load source %d: %w", id, err)
		}
		data, err := s.store.FindPeriod(ctx, id, statements.PeriodMonthly, start, end)
		if err != nil {
			return nil, fmt.Errorf("recompute: source %d period: %w", id, err)
		}
		sources = append(sources, aggregate.Source{Report: report, Data: data})
	}

	data, err := s.optionalPeriod(ctx, target.ID, statements.PeriodMonthly, start, end)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = &statements.ReportData{
			ReportID:   target.ID,
			BusinessID: target.BusinessID,
			PeriodType: statements.PeriodMonthly,
			StartDate:  start,
			EndDate:    end,
		}
	}
	run.Data = data
	if err := s.transition(ctx, data, statements.StateStarted, ""); err != nil {
		return nil, err
	}
	snap := &statements.Snapshot{Report: target, Today: s.now()}
	if err := s.aggregator.Businesses(snap, data, sources); err != nil {
		logger.Error("statements consolidation failed", slog.Any("error", err))
		if markErr := s.transition(ctx, data, statements.StateFailed, err.Error()); markErr != nil {
			return nil, errors.Join(err, markErr)
		}
		return nil, err
	}
	data.UpdateState = statements.StateFinished
	data.ErrorMsg = ""
	data.UpdatedAt = s.now()
	if err := s.store.SavePeriod(ctx, data); err != nil {
		return nil, fmt.Errorf("recompute: save period: %w", err)
	}
	if err := s.cache.Bump(ctx, target.ID); err != nil {
		logger.Warn("statements cache bump failed", slog.Any("error", err))
	}
	logger.Info("statements consolidated", slog.Int("sources", len(sources)), slog.Int64("data_id", data.ID))
	return run, nil
}

// Grid returns the stored grid of a period through the cache.
func (s *Service) Grid(ctx context.Context, req Request) (*statements.ReportData, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	start, end := req.Bounds()
	key, err := s.cache.GridKey(ctx, req.ReportID, req.PeriodType, start, end)
	if err != nil {
		return nil, err
	}
	var out statements.ReportData
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.store.FindPeriod(ctx, req.ReportID, req.PeriodType, start, end)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Invalidate queues a stored period for recomputation.
func (s *Service) Invalidate(ctx context.Context, req Request) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	start, end := req.Bounds()
	data, err := s.store.FindPeriod(ctx, req.ReportID, req.PeriodType, start, end)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.transition(ctx, data, statements.StateQueued, ""); err != nil {
		return err
	}
	return s.cache.Bump(ctx, req.ReportID)
}
