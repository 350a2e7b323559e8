// Package engine drives one batch: it orders the report's columns and items,
// dispatches every cell to its value strategy and flushes the grid back onto
// the ReportData.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/values"
)

// Outcome classifies what happened to one cell.
type Outcome string

const (
	OutcomeComputed Outcome = "computed"
	OutcomeEmpty    Outcome = "empty"
	OutcomeUpstream Outcome = "upstream_unavailable"
	OutcomeConfig   Outcome = "invalid_config"
	OutcomeFailed   Outcome = "failed"
)

// Observer receives the outcome of every cell.
type Observer interface {
	ObserveCell(kind statements.ReportKind, outcome Outcome)
}

// Result summarises a batch.
type Result struct {
	Computed int
	Skipped  int
	Empty    int
}

// Add accumulates another batch's counters.
func (r *Result) Add(other Result) {
	r.Computed += other.Computed
	r.Skipped += other.Skipped
	r.Empty += other.Empty
}

// Filter selects the cells a recompute pass rewrites.
type Filter func(item *statements.Item, column statements.Column) bool

// Derived selects the cells computed from other cells of the same grid:
// percentages, variances, budget ratios and stats items.
func Derived(item *statements.Item, column statements.Column) bool {
	switch column.Type {
	case statements.ColumnPercentage, statements.ColumnGrossPercentage,
		statements.ColumnVariance, statements.ColumnBudgetPercentage, statements.ColumnBudgetVariance:
		return true
	}
	return column.Type.ActualFamily() && item.TypeConfig.Name == statements.ItemTypeStats
}

// Option customises a Driver.
type Option func(*Driver)

// WithLogger sets the logger for skipped cells.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRegistry replaces the default strategy registry.
func WithRegistry(r *values.Registry) Option {
	return func(d *Driver) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithObserver reports cell outcomes, typically to metrics.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		d.observer = o
	}
}

// Driver computes report grids.
type Driver struct {
	registry *values.Registry
	logger   *slog.Logger
	observer Observer
}

// NewDriver builds a driver over the default registry.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		registry: values.DefaultRegistry(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run computes every cell of data from scratch and replaces data.ItemValues.
func (d *Driver) Run(snap *statements.Snapshot, data *statements.ReportData) (Result, error) {
	if err := checkInputs(snap, data); err != nil {
		return Result{}, err
	}
	ctx := values.NewContext(snap, data, statements.NewGrid(nil))
	res := d.batch(ctx, nil)
	data.ItemValues = ctx.Grid.Values()
	data.BudgetIDs = ctx.BudgetIDs()
	return res, nil
}

// Recompute rewrites the cells selected by filter over the existing grid of
// data. Other cells are left untouched.
func (d *Driver) Recompute(snap *statements.Snapshot, data *statements.ReportData, filter Filter) (Result, error) {
	if err := checkInputs(snap, data); err != nil {
		return Result{}, err
	}
	if filter == nil {
		filter = Derived
	}
	ctx := values.NewContext(snap, data, statements.NewGrid(data.ItemValues))
	ctx.Recompute = true
	res := d.batch(ctx, filter)
	data.ItemValues = ctx.Grid.Values()
	data.BudgetIDs = ctx.BudgetIDs()
	return res, nil
}

func checkInputs(snap *statements.Snapshot, data *statements.ReportData) error {
	if snap == nil || snap.Report == nil {
		return statements.ErrNilReport
	}
	if data == nil {
		return statements.ErrNilData
	}
	if err := snap.Report.Validate(); err != nil {
		return err
	}
	if data.ReportID != 0 && data.ReportID != snap.Report.ID {
		return fmt.Errorf("%w: data %d belongs to report %d, not %d", statements.ErrReportMismatch, data.ID, data.ReportID, snap.Report.ID)
	}
	return nil
}

func (d *Driver) batch(ctx *values.Context, filter Filter) Result {
	report := ctx.Report
	columns := OrderColumns(report.Columns, ctx.Data.PeriodType, report.GrossColumnsEnabled)
	items := OrderItems(report)

	var res Result
	for _, col := range columns {
		for _, item := range items {
			if filter != nil && !filter(item, col) {
				continue
			}
			outcome := d.cell(ctx, item, col)
			switch outcome {
			case OutcomeComputed:
				res.Computed++
			case OutcomeEmpty:
				res.Empty++
			default:
				res.Skipped++
			}
			if d.observer != nil {
				d.observer.ObserveCell(report.Kind, outcome)
			}
		}
	}
	d.logger.Debug("statements batch done",
		slog.Int64("report_id", report.ID),
		slog.Int64("data_id", ctx.Data.ID),
		slog.Int("computed", res.Computed),
		slog.Int("skipped", res.Skipped),
		slog.Int("empty", res.Empty),
	)
	return res
}

func (d *Driver) cell(ctx *values.Context, item *statements.Item, col statements.Column) Outcome {
	strategy, ok := d.registry.Resolve(ctx.Report.Kind, item, col)
	if !ok {
		ctx.Grid.Delete(item.ID, col.ID)
		return OutcomeEmpty
	}
	v, err := strategy.Compute(ctx.Cell(item, col))
	if err != nil {
		ctx.Grid.Delete(item.ID, col.ID)
		outcome := OutcomeFailed
		switch {
		case errors.Is(err, values.ErrUpstreamUnavailable):
			outcome = OutcomeUpstream
		case errors.Is(err, values.ErrInvalidConfig):
			outcome = OutcomeConfig
		}
		d.logger.Debug("statements cell skipped",
			slog.Int64("item_id", item.ID),
			slog.Int64("column_id", col.ID),
			slog.String("outcome", string(outcome)),
			slog.Any("error", err),
		)
		return outcome
	}
	if v == nil {
		ctx.Grid.Delete(item.ID, col.ID)
		return OutcomeEmpty
	}
	v.ItemID, v.ColumnID = item.ID, col.ID
	ctx.Grid.Put(*v)
	return OutcomeComputed
}
