package engine

import (
	"sort"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

var columnTypeRank = map[statements.ColumnType]int{
	statements.ColumnActual:           0,
	statements.ColumnGrossActual:      1,
	statements.ColumnPercentage:       2,
	statements.ColumnGrossPercentage:  3,
	statements.ColumnBudgetActual:     4,
	statements.ColumnBudgetPercentage: 5,
	statements.ColumnBudgetVariance:   6,
	statements.ColumnVariance:         7,
}

var rangeRank = map[statements.Range]int{
	statements.RangeCurrentPeriod: 0,
	statements.RangeMTD:           1,
	statements.RangeYTD:           2,
}

var yearRank = map[statements.Year]int{
	statements.YearCurrent:        0,
	statements.YearPreviousPeriod: 1,
	statements.YearPrior:          2,
}

func rank[K comparable](m map[K]int, k K) int {
	if r, ok := m[k]; ok {
		return r
	}
	return len(m)
}

// OrderColumns returns the columns a batch computes, in dependency order.
// Daily periods have no ytd columns and gross columns need the report flag.
func OrderColumns(columns []statements.Column, period statements.PeriodType, grossEnabled bool) []statements.Column {
	out := make([]statements.Column, 0, len(columns))
	for _, col := range columns {
		if period == statements.PeriodDaily && col.Range == statements.RangeYTD {
			continue
		}
		if col.Type.Gross() && !grossEnabled {
			continue
		}
		out = append(out, col)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := rank(columnTypeRank, a.Type), rank(columnTypeRank, b.Type); ra != rb {
			return ra < rb
		}
		if ra, rb := rank(rangeRank, a.Range), rank(rangeRank, b.Range); ra != rb {
			return ra < rb
		}
		if ra, rb := rank(yearRank, a.Year), rank(yearRank, b.Year); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
	return out
}

// OrderItems flattens the item tree so every item follows its children and,
// inside a sibling group, totals items follow the rest. Stats items go last
// since their formulas may read any other item.
func OrderItems(report *statements.Report) []*statements.Item {
	if report == nil {
		return nil
	}
	var ordered []*statements.Item
	var visit func(group []*statements.Item)
	visit = func(group []*statements.Item) {
		for _, item := range sortGroup(group) {
			visit(item.Children)
			ordered = append(ordered, item)
		}
	}
	visit(report.Items)

	out := make([]*statements.Item, 0, len(ordered))
	var stats []*statements.Item
	for _, item := range ordered {
		if item.TypeConfig.Name == statements.ItemTypeStats {
			stats = append(stats, item)
			continue
		}
		out = append(out, item)
	}
	return append(out, stats...)
}

func sortGroup(group []*statements.Item) []*statements.Item {
	out := make([]*statements.Item, 0, len(group))
	for _, item := range group {
		if item != nil {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Totals != b.Totals {
			return !a.Totals
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
	return out
}
