package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// EnqueueCmd hands recompute work to the worker.
type EnqueueCmd struct {
	env *Env
	req EnqueueRequest
}

// NewEnqueueCmd creates the enqueue command.
func NewEnqueueCmd(env *Env) *cobra.Command {
	ec := &EnqueueCmd{env: env}
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a period, year or consolidation for the worker",
		RunE:  ec.run,
	}
	cmd.Flags().Int64Var(&ec.req.ReportID, "report", 0, "report id, or the group report with --source")
	cmd.Flags().StringVar(&ec.req.PeriodType, "period", string(statements.PeriodMonthly), "period type: daily or monthly")
	cmd.Flags().StringVar(&ec.req.Date, "date", "", "any day inside the period (YYYY-MM-DD)")
	cmd.Flags().IntVar(&ec.req.Year, "year", 0, "queue every month of this year")
	cmd.Flags().Int64SliceVar(&ec.req.Sources, "source", nil, "source report ids for a consolidation")
	cmd.Flags().StringVar(&ec.req.Month, "month", "", "consolidation month (YYYY-MM)")
	cmd.Flags().BoolVar(&ec.req.Force, "force", false, "recompute even when inputs did not change")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func (ec *EnqueueCmd) run(cmd *cobra.Command, args []string) error {
	req := ec.req
	if req.Year == 0 && len(req.Sources) == 0 {
		if req.Date == "" {
			req.Date = ec.env.now().Format("2006-01-02")
		} else if _, err := parseDate(req.Date); err != nil {
			return err
		}
	}
	queue, err := ec.env.queue(cmd.Context())
	if err != nil {
		return err
	}
	info, err := queue.Trigger(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s %s on %s\n", info.Type, info.ID, info.Queue)
	return nil
}

// QueueCmd prints queue depth and scheduled tasks.
type QueueCmd struct {
	env   *Env
	limit int
}

// NewQueueCmd creates the queue command.
func NewQueueCmd(env *Env) *cobra.Command {
	qc := &QueueCmd{env: env}
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show statement queue statistics",
		RunE:  qc.run,
	}
	cmd.Flags().IntVar(&qc.limit, "scheduled", 10, "number of scheduled tasks to list")
	return cmd
}

func (qc *QueueCmd) run(cmd *cobra.Command, args []string) error {
	queue, err := qc.env.queue(cmd.Context())
	if err != nil {
		return err
	}
	stats, err := queue.InspectQueue(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "queue %s: pending=%d active=%d scheduled=%d retry=%d failed=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed)
	if qc.limit <= 0 {
		return nil
	}
	tasks, err := queue.ListScheduled(cmd.Context(), qc.limit)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNEXT RUN")
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", task.ID, task.Type, task.NextRunAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the statement tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Migrate == nil {
				return errNotConfigured
			}
			if err := env.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
