package recompute

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

var (
	// ErrNotFound is returned when a report or period does not exist.
	ErrNotFound = errors.New("recompute: record not found")
	// ErrInvalidRequest wraps validation failures.
	ErrInvalidRequest = errors.New("recompute: invalid request")
)

// Request asks for one period of a report to be computed.
type Request struct {
	ReportID   int64                 `json:"report_id" validate:"required,gt=0"`
	PeriodType statements.PeriodType `json:"period_type" validate:"required,oneof=daily monthly"`
	Date       time.Time             `json:"date" validate:"required"`
	// Force recomputes even when no input changed since the last run.
	Force bool `json:"force,omitempty"`
}

// Bounds returns the first and last day of the requested period.
func (r Request) Bounds() (time.Time, time.Time) {
	day := time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC)
	if r.PeriodType == statements.PeriodDaily {
		return day, day
	}
	start := statements.MonthStart(day)
	return start, start.AddDate(0, 1, -1)
}

// YearRequest recomputes every month of a fiscal year in order.
type YearRequest struct {
	ReportID int64 `json:"report_id" validate:"required,gt=0"`
	Year     int   `json:"year" validate:"required,gte=2000,lte=2100"`
	Force    bool  `json:"force,omitempty"`
}

// RangeRequest derives a rollup over monthly periods.
type RangeRequest struct {
	ReportID int64     `json:"report_id" validate:"required,gt=0"`
	Start    time.Time `json:"start" validate:"required"`
	End      time.Time `json:"end" validate:"required,gtfield=Start"`
}

// GroupRequest merges the same month of several businesses into a target
// report of the same template.
type GroupRequest struct {
	TargetReportID  int64     `json:"target_report_id" validate:"required,gt=0"`
	SourceReportIDs []int64   `json:"source_report_ids" validate:"required,min=1,dive,gt=0"`
	Month           time.Time `json:"month" validate:"required"`
}

// Store is the persistence boundary of the recompute service.
type Store interface {
	LoadReport(ctx context.Context, reportID int64) (*statements.Report, error)
	FindPeriod(ctx context.Context, reportID int64, periodType statements.PeriodType, start, end time.Time) (*statements.ReportData, error)
	ListMonths(ctx context.Context, reportID int64, start, end time.Time) ([]*statements.ReportData, error)
	// LoadInputs fills the snapshot's chart, classes, ledgers, budgets,
	// metrics and dependencies for the window.
	LoadInputs(ctx context.Context, report *statements.Report, periodType statements.PeriodType, start, end time.Time) (*statements.Snapshot, error)
	SavePeriod(ctx context.Context, data *statements.ReportData) error
	UpdateState(ctx context.Context, dataID int64, state statements.UpdateState, errorMsg string) error
}

var validate = validator.New()

func validateRequest(v any) error {
	if err := validate.Struct(v); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	return nil
}

// Schema creates the tables the Repository reads and writes.
//
//go:embed schema.sql
var Schema string
