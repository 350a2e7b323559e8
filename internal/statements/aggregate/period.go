// Package aggregate derives rollup grids from computed ones: longer windows
// from monthly periods, and group reports from several businesses.
package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/engine"
)

var (
	// ErrNoPeriods is returned when a window encloses no monthly period.
	ErrNoPeriods = errors.New("aggregate: no monthly periods in window")
	// ErrNoSources is returned when there is nothing to merge.
	ErrNoSources = errors.New("aggregate: no source reports")
)

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Encloses reports whether d lies entirely inside the window.
func (w Window) Encloses(d *statements.ReportData) bool {
	return d != nil && !d.StartDate.Before(w.Start) && !d.EndDate.After(w.End)
}

// Aggregator derives rollup grids and re-runs the derived columns over them.
type Aggregator struct {
	driver *engine.Driver
}

// New returns an aggregator recomputing through driver.
func New(driver *engine.Driver) *Aggregator {
	if driver == nil {
		driver = engine.NewDriver()
	}
	return &Aggregator{driver: driver}
}

// Period derives the grid of window from the monthly periods it encloses.
// before is the monthly period immediately preceding the window, if any. A
// window enclosing a single month returns that month unchanged.
func (a *Aggregator) Period(snap *statements.Snapshot, window Window, months []*statements.ReportData, before *statements.ReportData) (*statements.ReportData, error) {
	if snap == nil || snap.Report == nil {
		return nil, statements.ErrNilReport
	}
	var enclosed []*statements.ReportData
	for _, m := range months {
		if window.Encloses(m) {
			enclosed = append(enclosed, m)
		}
	}
	if len(enclosed) == 0 {
		return nil, fmt.Errorf("%w: %s..%s", ErrNoPeriods, window.Start.Format(time.DateOnly), window.End.Format(time.DateOnly))
	}
	if len(enclosed) == 1 {
		return enclosed[0], nil
	}
	sort.Slice(enclosed, func(i, j int) bool { return enclosed[i].StartDate.Before(enclosed[j].StartDate) })

	last := enclosed[len(enclosed)-1]
	out := &statements.ReportData{
		ReportID:   snap.Report.ID,
		BusinessID: last.BusinessID,
		PeriodType: statements.PeriodRange,
		StartDate:  window.Start,
		EndDate:    window.End,
		BudgetIDs:  unionBudgetIDs(enclosed),
	}
	segments := fiscalSegments(enclosed)
	if before != nil && before.Year() != segments[0][0].Year() {
		before = nil
	}

	grid := statements.NewGrid(nil)
	snap.Report.Walk(func(item, _ *statements.Item) {
		for _, col := range snap.Report.Columns {
			if v, ok := periodCell(item.ID, col, segments, before); ok {
				grid.Put(v)
			}
		}
	})
	out.ItemValues = grid.Values()
	if _, err := a.driver.Recompute(snap, out, engine.Derived); err != nil {
		return nil, err
	}
	return out, nil
}

// fiscalSegments splits consecutive months into runs of the same fiscal year.
func fiscalSegments(months []*statements.ReportData) [][]*statements.ReportData {
	var out [][]*statements.ReportData
	for _, m := range months {
		n := len(out)
		if n > 0 && out[n-1][0].Year() == m.Year() {
			out[n-1] = append(out[n-1], m)
			continue
		}
		out = append(out, []*statements.ReportData{m})
	}
	return out
}

func periodCell(itemID int64, col statements.Column, segments [][]*statements.ReportData, before *statements.ReportData) (statements.ItemValue, bool) {
	lastSeg := segments[len(segments)-1]
	last := lastSeg[len(lastSeg)-1]

	if col.Range != statements.RangeCurrentPeriod {
		if !col.Type.ActualFamily() && col.Type != statements.ColumnBudgetActual && !col.Type.PercentageFamily() {
			return statements.ItemValue{}, false
		}
		src, ok := last.Cell(itemID, col.ID)
		if !ok {
			return statements.ItemValue{}, false
		}
		return src.Clone(), true
	}

	switch {
	case col.Type.ActualFamily():
		return accumulatedDiff(itemID, col, segments, before)
	case col.Type == statements.ColumnBudgetActual:
		return sumCells(itemID, col, segments, true)
	case col.Type.PercentageFamily():
		// Only the cross-report operand is carried; the ratio is recomputed.
		v, ok := sumCells(itemID, col, segments, false)
		v.Value, v.AccumulatedValue = 0, 0
		return v, ok
	}
	return statements.ItemValue{}, false
}

// accumulatedDiff is the change in running total across the window, per
// fiscal year segment.
func accumulatedDiff(itemID int64, col statements.Column, segments [][]*statements.ReportData, before *statements.ReportData) (statements.ItemValue, bool) {
	out := statements.ItemValue{ItemID: itemID, ColumnID: col.ID, ColumnType: statements.ColumnActual}
	found := false
	accounts := make(map[accountKey]float64)
	for i, seg := range segments {
		var startAcc, startDep float64
		if i == 0 && before != nil {
			if cell, ok := before.Cell(itemID, col.ID); ok {
				startAcc, startDep = cell.AccumulatedValue, cell.DependencyAccumulatedValue
				found = true
			}
		}
		end, ok := seg[len(seg)-1].Cell(itemID, col.ID)
		if !ok {
			out.Value -= startAcc
			out.DependencyAccumulatedValue -= startDep
			continue
		}
		found = true
		out.Value += end.AccumulatedValue - startAcc
		out.DependencyAccumulatedValue += end.DependencyAccumulatedValue - startDep
		out.AccumulatedValue = end.AccumulatedValue
		out.ColumnType = end.ColumnType
		for _, m := range seg {
			if cell, ok := m.Cell(itemID, col.ID); ok {
				addAccounts(accounts, cell.ItemAccountValues)
			}
		}
	}
	out.ItemAccountValues = accountValues(accounts)
	return out, found
}

// sumCells adds the cell across every month of the window.
func sumCells(itemID int64, col statements.Column, segments [][]*statements.ReportData, withBudgets bool) (statements.ItemValue, bool) {
	out := statements.ItemValue{ItemID: itemID, ColumnID: col.ID}
	found := false
	perBudget := make(map[int64]float64)
	operands := make(map[string]float64)
	for _, seg := range segments {
		for _, m := range seg {
			cell, ok := m.Cell(itemID, col.ID)
			if !ok {
				continue
			}
			found = true
			out.Value += cell.Value
			out.AccumulatedValue = cell.AccumulatedValue
			out.DependencyAccumulatedValue += cell.DependencyAccumulatedValue
			addOperands(operands, cell.DependencyOperands)
			out.ColumnType = cell.ColumnType
			if withBudgets {
				for _, bv := range cell.BudgetValues {
					perBudget[bv.BudgetID] += bv.Value
				}
			}
		}
	}
	out.BudgetValues = budgetValues(perBudget)
	out.DependencyOperands = operandValues(operands)
	return out, found
}

func unionBudgetIDs(periods []*statements.ReportData) []int64 {
	seen := make(map[int64]struct{})
	for _, p := range periods {
		for _, id := range p.BudgetIDs {
			seen[id] = struct{}{}
		}
	}
	return sortedIDs(seen)
}

func sortedIDs(ids map[int64]struct{}) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type accountKey struct {
	coa   int64
	class int64
	has   bool
}

func addAccounts(into map[accountKey]float64, values []statements.ItemAccountValue) {
	for _, av := range values {
		key := accountKey{coa: av.ChartOfAccountID}
		if av.AccountingClassID != nil {
			key.class, key.has = *av.AccountingClassID, true
		}
		into[key] += av.Value
	}
}

func accountValues(m map[accountKey]float64) []statements.ItemAccountValue {
	if len(m) == 0 {
		return nil
	}
	keys := make([]accountKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].coa != keys[j].coa {
			return keys[i].coa < keys[j].coa
		}
		if keys[i].has != keys[j].has {
			return !keys[i].has
		}
		return keys[i].class < keys[j].class
	})
	out := make([]statements.ItemAccountValue, 0, len(keys))
	for _, k := range keys {
		av := statements.ItemAccountValue{ChartOfAccountID: k.coa, Value: m[k]}
		if k.has {
			class := k.class
			av.AccountingClassID = &class
		}
		out = append(out, av)
	}
	return out
}

func addOperands(into map[string]float64, ops []statements.DependencyOperand) {
	for _, op := range ops {
		into[op.Identifier] += op.Value
	}
}

func operandValues(m map[string]float64) []statements.DependencyOperand {
	var out []statements.DependencyOperand
	for id, v := range m {
		out = statements.SetDependencyOperand(out, id, v)
	}
	return out
}

func budgetValues(m map[int64]float64) []statements.BudgetValue {
	if len(m) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]statements.BudgetValue, 0, len(ids))
	for _, id := range ids {
		out = append(out, statements.BudgetValue{BudgetID: id, Value: m[id]})
	}
	return out
}
