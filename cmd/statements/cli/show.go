package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// ShowCmd prints a stored grid or a derived rollup.
type ShowCmd struct {
	env        *Env
	reportID   int64
	periodType string
	date       string
	start      string
	end        string
	locale     string
	asJSON     bool
}

// NewShowCmd creates the show command.
func NewShowCmd(env *Env) *cobra.Command {
	sc := &ShowCmd{env: env}
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the cells of a period, or of a range when --start and --end are set",
		RunE:  sc.run,
	}
	cmd.Flags().Int64Var(&sc.reportID, "report", 0, "report id")
	cmd.Flags().StringVar(&sc.periodType, "period", string(statements.PeriodMonthly), "period type: daily or monthly")
	cmd.Flags().StringVar(&sc.date, "date", "", "any day inside the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&sc.start, "start", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&sc.end, "end", "", "range end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&sc.locale, "locale", "en", "BCP 47 tag used to format numbers")
	cmd.Flags().BoolVar(&sc.asJSON, "json", false, "print the raw grid as JSON")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func (sc *ShowCmd) run(cmd *cobra.Command, args []string) error {
	svc, err := sc.env.statements(cmd.Context())
	if err != nil {
		return err
	}
	var data *statements.ReportData
	switch {
	case sc.start != "" || sc.end != "":
		if sc.start == "" || sc.end == "" {
			return errors.New("--start and --end must be set together")
		}
		start, err := parseDate(sc.start)
		if err != nil {
			return err
		}
		end, err := parseDate(sc.end)
		if err != nil {
			return err
		}
		data, err = svc.Rollup(cmd.Context(), recompute.RangeRequest{ReportID: sc.reportID, Start: start, End: end})
		if err != nil {
			return err
		}
	default:
		date := sc.env.now()
		if sc.date != "" {
			date, err = parseDate(sc.date)
			if err != nil {
				return err
			}
		}
		data, err = svc.Grid(cmd.Context(), recompute.Request{
			ReportID:   sc.reportID,
			PeriodType: statements.PeriodType(sc.periodType),
			Date:       date,
		})
		if err != nil {
			return err
		}
	}

	if sc.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	tag, err := language.Parse(sc.locale)
	if err != nil {
		return fmt.Errorf("locale %q: %w", sc.locale, err)
	}
	return writeGrid(cmd.OutOrStdout(), message.NewPrinter(tag), data)
}

func writeGrid(w io.Writer, p *message.Printer, data *statements.ReportData) error {
	fmt.Fprintf(w, "report %d  %s  %s..%s  %s\n",
		data.ReportID, data.PeriodType,
		data.StartDate.Format("2006-01-02"), data.EndDate.Format("2006-01-02"),
		data.UpdateState)
	if data.ErrorMsg != "" {
		fmt.Fprintf(w, "error: %s\n", data.ErrorMsg)
	}
	cells := append([]statements.ItemValue(nil), data.ItemValues...)
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].ItemID != cells[j].ItemID {
			return cells[i].ItemID < cells[j].ItemID
		}
		return cells[i].ColumnID < cells[j].ColumnID
	})
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ITEM\tCOLUMN\tTYPE\tVALUE\tACCUMULATED\t")
	for _, cell := range cells {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t\n",
			cell.ItemID, cell.ColumnID, cell.ColumnType,
			p.Sprintf("%.2f", cell.Value), p.Sprintf("%.2f", cell.AccumulatedValue))
	}
	return tw.Flush()
}

// InvalidateCmd marks a period stale so the next sweep recomputes it.
type InvalidateCmd struct {
	env        *Env
	reportID   int64
	periodType string
	date       string
}

// NewInvalidateCmd creates the invalidate command.
func NewInvalidateCmd(env *Env) *cobra.Command {
	ic := &InvalidateCmd{env: env}
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Queue a period for recomputation and drop its cached grid",
		RunE:  ic.run,
	}
	cmd.Flags().Int64Var(&ic.reportID, "report", 0, "report id")
	cmd.Flags().StringVar(&ic.periodType, "period", string(statements.PeriodMonthly), "period type: daily or monthly")
	cmd.Flags().StringVar(&ic.date, "date", "", "any day inside the period (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("report")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func (ic *InvalidateCmd) run(cmd *cobra.Command, args []string) error {
	date, err := parseDate(ic.date)
	if err != nil {
		return err
	}
	svc, err := ic.env.statements(cmd.Context())
	if err != nil {
		return err
	}
	req := recompute.Request{ReportID: ic.reportID, PeriodType: statements.PeriodType(ic.periodType), Date: date}
	if err := svc.Invalidate(cmd.Context(), req); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "report %d %s %s queued\n", ic.reportID, ic.periodType, ic.date)
	return nil
}
