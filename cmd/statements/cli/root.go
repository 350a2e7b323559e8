// Package cli implements the statements operator commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// Statements is the slice of the recompute service the commands drive.
type Statements interface {
	Recompute(ctx context.Context, req recompute.Request) (*recompute.Run, error)
	RecomputeYear(ctx context.Context, req recompute.YearRequest) ([]*recompute.Run, error)
	Consolidate(ctx context.Context, req recompute.GroupRequest) (*recompute.Run, error)
	Grid(ctx context.Context, req recompute.Request) (*statements.ReportData, error)
	Rollup(ctx context.Context, req recompute.RangeRequest) (*statements.ReportData, error)
	Invalidate(ctx context.Context, req recompute.Request) error
}

// Queue is the job queue surface used by enqueue and queue commands.
type Queue interface {
	Trigger(ctx context.Context, req EnqueueRequest) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
	ListScheduled(ctx context.Context, size int) ([]ScheduledTask, error)
}

// EnqueueRequest describes the task to place on the queue.
type EnqueueRequest struct {
	ReportID   int64
	PeriodType string
	Date       string
	Year       int
	Sources    []int64
	Month      string
	Force      bool
}

// Env resolves dependencies lazily so commands only open the connections
// they need.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	Statements func(ctx context.Context) (Statements, error)
	Queue      func(ctx context.Context) (Queue, error)
	Migrate    func(ctx context.Context) error
	Now        func() time.Time
}

var errNotConfigured = errors.New("statements cli: dependency not configured")

func (e *Env) stdout() io.Writer {
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Env) statements(ctx context.Context) (Statements, error) {
	if e.Statements == nil {
		return nil, errNotConfigured
	}
	return e.Statements(ctx)
}

func (e *Env) queue(ctx context.Context) (Queue, error) {
	if e.Queue == nil {
		return nil, errNotConfigured
	}
	return e.Queue(ctx)
}

// NewRootCmd assembles the statements command tree.
func NewRootCmd(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "statements",
		Short:         "Compute and inspect financial statement grids",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(env.stdout())
	if env.Stderr != nil {
		root.SetErr(env.Stderr)
	}
	root.AddCommand(
		NewRecomputeCmd(env),
		NewRecomputeYearCmd(env),
		NewConsolidateCmd(env),
		NewShowCmd(env),
		NewInvalidateCmd(env),
		NewEnqueueCmd(env),
		NewQueueCmd(env),
		NewMigrateCmd(env),
	)
	return root
}

func parseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", raw)
	}
	return d, nil
}
