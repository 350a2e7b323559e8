package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// RecomputeCmd computes one period in-process.
type RecomputeCmd struct {
	env        *Env
	reportID   int64
	periodType string
	date       string
	force      bool
}

// NewRecomputeCmd creates the recompute command.
func NewRecomputeCmd(env *Env) *cobra.Command {
	rc := &RecomputeCmd{env: env}
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Compute one daily or monthly period of a report",
		RunE:  rc.run,
	}
	cmd.Flags().Int64Var(&rc.reportID, "report", 0, "report id")
	cmd.Flags().StringVar(&rc.periodType, "period", string(statements.PeriodMonthly), "period type: daily or monthly")
	cmd.Flags().StringVar(&rc.date, "date", "", "any day inside the period (YYYY-MM-DD), defaults to today")
	cmd.Flags().BoolVar(&rc.force, "force", false, "recompute even when inputs did not change")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func (rc *RecomputeCmd) run(cmd *cobra.Command, args []string) error {
	date := rc.env.now()
	if rc.date != "" {
		parsed, err := parseDate(rc.date)
		if err != nil {
			return err
		}
		date = parsed
	}
	svc, err := rc.env.statements(cmd.Context())
	if err != nil {
		return err
	}
	run, err := svc.Recompute(cmd.Context(), recompute.Request{
		ReportID:   rc.reportID,
		PeriodType: statements.PeriodType(rc.periodType),
		Date:       date,
		Force:      rc.force,
	})
	if err != nil {
		return err
	}
	printRun(cmd, run)
	return nil
}

// RecomputeYearCmd recomputes every month of a fiscal year.
type RecomputeYearCmd struct {
	env      *Env
	reportID int64
	year     int
	force    bool
}

// NewRecomputeYearCmd creates the recompute-year command.
func NewRecomputeYearCmd(env *Env) *cobra.Command {
	yc := &RecomputeYearCmd{env: env}
	cmd := &cobra.Command{
		Use:   "recompute-year",
		Short: "Compute every month of a year in order",
		RunE:  yc.run,
	}
	cmd.Flags().Int64Var(&yc.reportID, "report", 0, "report id")
	cmd.Flags().IntVar(&yc.year, "year", 0, "fiscal year, defaults to the current year")
	cmd.Flags().BoolVar(&yc.force, "force", false, "recompute even when inputs did not change")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func (yc *RecomputeYearCmd) run(cmd *cobra.Command, args []string) error {
	year := yc.year
	if year == 0 {
		year = yc.env.now().Year()
	}
	svc, err := yc.env.statements(cmd.Context())
	if err != nil {
		return err
	}
	runs, err := svc.RecomputeYear(cmd.Context(), recompute.YearRequest{ReportID: yc.reportID, Year: year, Force: yc.force})
	for _, run := range runs {
		printRun(cmd, run)
	}
	return err
}

// ConsolidateCmd merges business reports into a group report.
type ConsolidateCmd struct {
	env     *Env
	target  int64
	sources []int64
	month   string
}

// NewConsolidateCmd creates the consolidate command.
func NewConsolidateCmd(env *Env) *cobra.Command {
	cc := &ConsolidateCmd{env: env}
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge the same month of several businesses into a group report",
		RunE:  cc.run,
	}
	cmd.Flags().Int64Var(&cc.target, "target", 0, "group report id")
	cmd.Flags().Int64SliceVar(&cc.sources, "source", nil, "source report ids")
	cmd.Flags().StringVar(&cc.month, "month", "", "month (YYYY-MM), defaults to the previous month")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func (cc *ConsolidateCmd) run(cmd *cobra.Command, args []string) error {
	month := statements.MonthStart(cc.env.now()).AddDate(0, -1, 0)
	if cc.month != "" {
		parsed, err := time.ParseInLocation("2006-01", cc.month, time.UTC)
		if err != nil {
			return fmt.Errorf("month %q must be YYYY-MM", cc.month)
		}
		month = parsed
	}
	svc, err := cc.env.statements(cmd.Context())
	if err != nil {
		return err
	}
	run, err := svc.Consolidate(cmd.Context(), recompute.GroupRequest{
		TargetReportID:  cc.target,
		SourceReportIDs: cc.sources,
		Month:           month,
	})
	if err != nil {
		return err
	}
	printRun(cmd, run)
	return nil
}

func printRun(cmd *cobra.Command, run *recompute.Run) {
	if run == nil {
		return
	}
	out := cmd.OutOrStdout()
	if run.UpToDate {
		fmt.Fprintf(out, "%s up to date\n", run.ID)
		return
	}
	cells := 0
	if run.Data != nil {
		cells = len(run.Data.ItemValues)
	}
	fmt.Fprintf(out, "%s computed %d cells\n", run.ID, cells)
}
