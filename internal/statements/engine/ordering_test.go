package engine

import (
	"testing"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

func identifiers(items []*statements.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Identifier)
	}
	return out
}

func TestOrderItemsPostOrder(t *testing.T) {
	report := &statements.Report{Items: []*statements.Item{
		{ID: 1, Identifier: "revenue", Order: 1, Children: []*statements.Item{
			{ID: 4, Identifier: "total_revenue", Order: 0, Totals: true},
			{ID: 3, Identifier: "food", Order: 2},
			{ID: 2, Identifier: "rooms", Order: 1},
		}},
		{ID: 9, Identifier: "ratio", Order: 0, TypeConfig: statements.TypeConfig{Name: statements.ItemTypeStats}},
		{ID: 5, Identifier: "grand_total", Order: 3, Totals: true},
		{ID: 6, Identifier: "expenses", Order: 2, Children: []*statements.Item{
			{ID: 7, Identifier: "payroll", Order: 1},
		}},
	}}

	got := identifiers(OrderItems(report))
	want := []string{"rooms", "food", "total_revenue", "revenue", "payroll", "expenses", "grand_total", "ratio"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestOrderItemsTieBreaksOnID(t *testing.T) {
	report := &statements.Report{Items: []*statements.Item{
		{ID: 20, Identifier: "b"},
		{ID: 10, Identifier: "a"},
	}}
	got := identifiers(OrderItems(report))
	if got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestOrderColumns(t *testing.T) {
	cols := []statements.Column{
		{ID: 1, Type: statements.ColumnVariance, Range: statements.RangeCurrentPeriod, Year: statements.YearPrior},
		{ID: 2, Type: statements.ColumnActual, Range: statements.RangeYTD, Year: statements.YearCurrent},
		{ID: 3, Type: statements.ColumnActual, Range: statements.RangeCurrentPeriod, Year: statements.YearPrior},
		{ID: 4, Type: statements.ColumnActual, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
		{ID: 5, Type: statements.ColumnPercentage, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
		{ID: 6, Type: statements.ColumnGrossActual, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
		{ID: 7, Type: statements.ColumnBudgetActual, Range: statements.RangeMTD, Year: statements.YearCurrent},
		{ID: 8, Type: statements.ColumnActual, Range: statements.RangeCurrentPeriod, Year: statements.YearPreviousPeriod},
	}

	ids := func(cols []statements.Column) []int64 {
		out := make([]int64, 0, len(cols))
		for _, c := range cols {
			out = append(out, c.ID)
		}
		return out
	}

	got := ids(OrderColumns(cols, statements.PeriodMonthly, true))
	want := []int64{4, 8, 3, 2, 6, 5, 7, 1}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	daily := ids(OrderColumns(cols, statements.PeriodDaily, false))
	for _, id := range daily {
		if id == 2 || id == 6 {
			t.Fatalf("daily ordering must drop ytd and gross columns, got %v", daily)
		}
	}
	if len(daily) != 6 {
		t.Fatalf("expected 6 daily columns, got %v", daily)
	}
}
