package aggregate

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/engine"
)

// Source is one business's computed period of the same template.
type Source struct {
	Report *statements.Report
	Data   *statements.ReportData
}

// Businesses merges sources into target by item identifier. Items missing
// from any source are left out. Actual, budget and cross-report operands are
// summed; every derived column is then recomputed over the merged grid.
func (a *Aggregator) Businesses(snap *statements.Snapshot, target *statements.ReportData, sources []Source) error {
	if snap == nil || snap.Report == nil {
		return statements.ErrNilReport
	}
	if target == nil {
		return statements.ErrNilData
	}
	if len(sources) == 0 {
		return ErrNoSources
	}
	indexes := make([]*statements.Index, len(sources))
	for i, src := range sources {
		if src.Report == nil || src.Data == nil {
			return fmt.Errorf("%w: source %d is incomplete", ErrNoSources, i)
		}
		if src.Report.TemplateID != snap.Report.TemplateID {
			return fmt.Errorf("%w: source report %d uses template %d, want %d",
				statements.ErrReportMismatch, src.Report.ID, src.Report.TemplateID, snap.Report.TemplateID)
		}
		indexes[i] = statements.NewIndex(src.Report)
	}

	grid := statements.NewGrid(nil)
	budgetIDs := make(map[int64]struct{})
	snap.Report.Walk(func(item, _ *statements.Item) {
		matches := make([]*statements.Item, len(sources))
		for i, idx := range indexes {
			m, ok := idx.ByIdentifier(item.Identifier)
			if !ok {
				return
			}
			matches[i] = m
		}
		for _, col := range snap.Report.Columns {
			if !mergeable(col, snap.Report.GrossColumnsEnabled) {
				continue
			}
			merged := statements.ItemValue{ItemID: item.ID, ColumnID: col.ID}
			perBudget := make(map[int64]float64)
			accounts := make(map[accountKey]float64)
			operands := make(map[string]float64)
			found := false
			for i, src := range sources {
				srcCol, ok := src.Report.Column(col.Shape())
				if !ok {
					continue
				}
				cell, ok := src.Data.Cell(matches[i].ID, srcCol.ID)
				if !ok {
					continue
				}
				found = true
				merged.Value += cell.Value
				merged.AccumulatedValue += cell.AccumulatedValue
				merged.DependencyAccumulatedValue += cell.DependencyAccumulatedValue
				addOperands(operands, cell.DependencyOperands)
				merged.ColumnType = cell.ColumnType
				for _, bv := range cell.BudgetValues {
					perBudget[bv.BudgetID] += bv.Value
					budgetIDs[bv.BudgetID] = struct{}{}
				}
				addAccounts(accounts, cell.ItemAccountValues)
			}
			if !found {
				continue
			}
			if col.Type.PercentageFamily() {
				merged.Value, merged.AccumulatedValue = 0, 0
			}
			merged.BudgetValues = budgetValues(perBudget)
			merged.ItemAccountValues = accountValues(accounts)
			merged.DependencyOperands = operandValues(operands)
			grid.Put(merged)
		}
	})

	target.ReportID = snap.Report.ID
	target.ItemValues = grid.Values()
	target.BudgetIDs = sortedIDs(budgetIDs)
	_, err := a.driver.Recompute(snap, target, engine.Derived)
	return err
}

// mergeable selects the columns summed across businesses. Percentage cells
// only contribute their cross-report operand.
func mergeable(col statements.Column, grossEnabled bool) bool {
	if col.Type.Gross() && !grossEnabled {
		return false
	}
	return col.Type.ActualFamily() || col.Type.PercentageFamily() || col.Type == statements.ColumnBudgetActual
}
