package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatementsRecompute computes one period of a report.
	TaskStatementsRecompute = "statements:recompute"
	// TaskStatementsRecomputeYear computes every month of a report's year.
	TaskStatementsRecomputeYear = "statements:recompute-year"
	// TaskStatementsConsolidate merges business reports into a group report.
	TaskStatementsConsolidate = "statements:consolidate"
	// TaskStatementsSweep recomputes the running month of every report.
	TaskStatementsSweep = "statements:sweep"
)

// RecomputePayload identifies one period. Date uses the 2006-01-02 layout.
type RecomputePayload struct {
	ReportID   int64  `json:"report_id"`
	PeriodType string `json:"period_type"`
	Date       string `json:"date"`
	Force      bool   `json:"force,omitempty"`
}

// Request converts the payload into a service request.
func (p RecomputePayload) Request() (recompute.Request, error) {
	date, err := time.Parse(time.DateOnly, p.Date)
	if err != nil {
		return recompute.Request{}, fmt.Errorf("invalid date %q: %w", p.Date, err)
	}
	periodType := statements.PeriodType(p.PeriodType)
	if periodType == "" {
		periodType = statements.PeriodMonthly
	}
	return recompute.Request{ReportID: p.ReportID, PeriodType: periodType, Date: date, Force: p.Force}, nil
}

// RecomputeYearPayload identifies a report's fiscal year.
type RecomputeYearPayload struct {
	ReportID int64 `json:"report_id"`
	Year     int   `json:"year"`
	Force    bool  `json:"force,omitempty"`
}

// ConsolidatePayload names the group report, its sources and the month.
type ConsolidatePayload struct {
	TargetReportID  int64   `json:"target_report_id"`
	SourceReportIDs []int64 `json:"source_report_ids"`
	Month           string  `json:"month"`
}

// SweepPayload configures the sweep. An empty period type sweeps monthly.
type SweepPayload struct {
	PeriodType string `json:"period_type,omitempty"`
}

// NewRecomputeTask creates an Asynq task computing one period.
func NewRecomputeTask(payload RecomputePayload) (*asynq.Task, error) {
	return newTask(TaskStatementsRecompute, payload)
}

// NewRecomputeYearTask creates an Asynq task computing a year of months.
func NewRecomputeYearTask(payload RecomputeYearPayload) (*asynq.Task, error) {
	return newTask(TaskStatementsRecomputeYear, payload)
}

// NewConsolidateTask creates an Asynq task building a group report month.
func NewConsolidateTask(payload ConsolidatePayload) (*asynq.Task, error) {
	return newTask(TaskStatementsConsolidate, payload)
}

// NewSweepTask creates the periodic sweep task.
func NewSweepTask(periodType string) (*asynq.Task, error) {
	return newTask(TaskStatementsSweep, SweepPayload{PeriodType: periodType})
}

func newTask(typ string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}
