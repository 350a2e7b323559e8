package aggregate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/formula"
)

const (
	colActual int64 = iota + 1
	colActualYTD
	colPercentage
	colBudget
)

func month(y int, m time.Month) (time.Time, time.Time) {
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

func shareReport(id, templateID, roomsID, totalID int64) *statements.Report {
	return &statements.Report{
		ID:         id,
		TemplateID: templateID,
		Items: []*statements.Item{
			{
				ID: roomsID, Identifier: "rooms_revenue", Order: 1,
				TypeConfig: statements.TypeConfig{Name: statements.ItemTypeLedger},
				ValuesConfig: map[statements.ColumnType]formula.Expression{
					statements.ColumnPercentage: {
						Operator: formula.OpPercent,
						Arg1:     &formula.ItemRef{ItemID: "rooms_revenue"},
						Arg2:     &formula.ItemRef{ItemID: "total_revenue"},
					},
				},
			},
			{ID: totalID, Identifier: "total_revenue", Order: 2, Totals: true},
		},
		Columns: []statements.Column{
			{ID: colActual, Type: statements.ColumnActual, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
			{ID: colActualYTD, Type: statements.ColumnActual, Range: statements.RangeYTD, Year: statements.YearCurrent},
			{ID: colPercentage, Type: statements.ColumnPercentage, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
			{ID: colBudget, Type: statements.ColumnBudgetActual, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
		},
	}
}

// monthData builds a monthly period where rooms and total have the given
// value and running total.
func monthData(y int, m time.Month, rooms, roomsAcc, total, totalAcc float64) *statements.ReportData {
	start, end := month(y, m)
	return &statements.ReportData{
		ReportID:   1,
		PeriodType: statements.PeriodMonthly,
		StartDate:  start,
		EndDate:    end,
		BudgetIDs:  []int64{3},
		ItemValues: []statements.ItemValue{
			{ItemID: 10, ColumnID: colActual, Value: rooms, AccumulatedValue: roomsAcc, ColumnType: statements.ColumnActual},
			{ItemID: 10, ColumnID: colActualYTD, Value: roomsAcc, AccumulatedValue: roomsAcc, ColumnType: statements.ColumnActual},
			{ItemID: 10, ColumnID: colPercentage, Value: 100 * rooms / total, ColumnType: statements.ColumnPercentage},
			{ItemID: 10, ColumnID: colBudget, Value: 5, AccumulatedValue: 5 * float64(m), ColumnType: statements.ColumnActual,
				BudgetValues: []statements.BudgetValue{{BudgetID: 3, Value: 5}}},
			{ItemID: 20, ColumnID: colActual, Value: total, AccumulatedValue: totalAcc, ColumnType: statements.ColumnActual},
		},
	}
}

func find(t *testing.T, data *statements.ReportData, itemID, columnID int64) statements.ItemValue {
	t.Helper()
	v, ok := data.Cell(itemID, columnID)
	if !ok {
		t.Fatalf("missing cell item=%d column=%d", itemID, columnID)
	}
	return *v
}

func TestPeriodSingleMonthUnchanged(t *testing.T) {
	snap := &statements.Snapshot{Report: shareReport(1, 1, 10, 20)}
	march := monthData(2024, time.March, 20, 45, 40, 90)
	start, end := month(2024, time.March)

	got, err := New(nil).Period(snap, Window{Start: start, End: end}, []*statements.ReportData{march}, nil)
	require.NoError(t, err)
	require.Same(t, march, got)
}

func TestPeriodAccumulatedDifference(t *testing.T) {
	snap := &statements.Snapshot{Report: shareReport(1, 1, 10, 20)}
	jan := monthData(2024, time.January, 10, 10, 20, 20)
	feb := monthData(2024, time.February, 15, 25, 30, 50)
	mar := monthData(2024, time.March, 20, 45, 30, 80)
	start, _ := month(2024, time.February)
	_, end := month(2024, time.March)

	got, err := New(nil).Period(snap, Window{Start: start, End: end}, []*statements.ReportData{mar, jan, feb}, jan)
	require.NoError(t, err)
	require.Equal(t, statements.PeriodRange, got.PeriodType)
	require.Equal(t, []int64{3}, got.BudgetIDs)

	rooms := find(t, got, 10, colActual)
	require.InDelta(t, 35, rooms.Value, 1e-9)
	require.InDelta(t, 45, rooms.AccumulatedValue, 1e-9)
	require.InDelta(t, 60, find(t, got, 20, colActual).Value, 1e-9)

	// Ratios are recomputed from the rolled up actuals, not summed.
	require.InDelta(t, 100*35.0/60.0, find(t, got, 10, colPercentage).Value, 1e-9)

	require.InDelta(t, 45, find(t, got, 10, colActualYTD).Value, 1e-9)

	budget := find(t, got, 10, colBudget)
	require.InDelta(t, 10, budget.Value, 1e-9)
	require.Equal(t, []statements.BudgetValue{{BudgetID: 3, Value: 10}}, budget.BudgetValues)
}

func TestPeriodBalanceIsNotSumOfMonths(t *testing.T) {
	snap := &statements.Snapshot{Report: shareReport(1, 1, 10, 20)}
	jan := monthData(2024, time.January, 500, 500, 1, 1)
	feb := monthData(2024, time.February, 520, 520, 1, 1)
	mar := monthData(2024, time.March, 510, 510, 1, 1)
	start, _ := month(2024, time.February)
	_, end := month(2024, time.March)

	got, err := New(nil).Period(snap, Window{Start: start, End: end}, []*statements.ReportData{jan, feb, mar}, jan)
	require.NoError(t, err)
	rooms := find(t, got, 10, colActual)
	require.InDelta(t, 10, rooms.Value, 1e-9)
	require.NotEqual(t, 1030.0, rooms.Value)
}

func TestPeriodCrossesFiscalYear(t *testing.T) {
	snap := &statements.Snapshot{Report: shareReport(1, 1, 10, 20)}
	nov := monthData(2023, time.November, 10, 100, 10, 100)
	dec := monthData(2023, time.December, 20, 120, 20, 120)
	jan := monthData(2024, time.January, 7, 7, 7, 7)
	start, _ := month(2023, time.December)
	_, end := month(2024, time.January)

	got, err := New(nil).Period(snap, Window{Start: start, End: end}, []*statements.ReportData{dec, jan}, nov)
	require.NoError(t, err)
	require.InDelta(t, 27, find(t, got, 10, colActual).Value, 1e-9)
	require.InDelta(t, 7, find(t, got, 10, colActual).AccumulatedValue, 1e-9)
}

func TestPeriodWithoutMonths(t *testing.T) {
	snap := &statements.Snapshot{Report: shareReport(1, 1, 10, 20)}
	start, end := month(2024, time.May)
	_, err := New(nil).Period(snap, Window{Start: start, End: end}, []*statements.ReportData{monthData(2024, time.March, 1, 1, 1, 1)}, nil)
	if !errors.Is(err, ErrNoPeriods) {
		t.Fatalf("expected ErrNoPeriods, got %v", err)
	}
}

func businessData(reportID, roomsID, totalID int64, rooms, total float64, budget float64) *statements.ReportData {
	start, end := month(2024, time.March)
	return &statements.ReportData{
		ReportID:   reportID,
		PeriodType: statements.PeriodMonthly,
		StartDate:  start,
		EndDate:    end,
		ItemValues: []statements.ItemValue{
			{ItemID: roomsID, ColumnID: colActual, Value: rooms, AccumulatedValue: rooms, ColumnType: statements.ColumnActual},
			{ItemID: roomsID, ColumnID: colPercentage, Value: 100 * rooms / total, ColumnType: statements.ColumnPercentage},
			{ItemID: roomsID, ColumnID: colBudget, Value: budget, ColumnType: statements.ColumnActual,
				BudgetValues: []statements.BudgetValue{{BudgetID: reportID, Value: budget}}},
			{ItemID: totalID, ColumnID: colActual, Value: total, AccumulatedValue: total, ColumnType: statements.ColumnActual},
		},
	}
}

func TestBusinessesSumsAndRecomputes(t *testing.T) {
	target := shareReport(100, 7, 1, 2)
	a := shareReport(11, 7, 10, 20)
	b := shareReport(12, 7, 30, 40)
	b.Items = append(b.Items, &statements.Item{ID: 50, Identifier: "spa", TypeConfig: statements.TypeConfig{Name: statements.ItemTypeLedger}})

	start, end := month(2024, time.March)
	out := &statements.ReportData{PeriodType: statements.PeriodMonthly, StartDate: start, EndDate: end}
	err := New(nil).Businesses(&statements.Snapshot{Report: target}, out, []Source{
		{Report: a, Data: businessData(11, 10, 20, 10, 20, 4)},
		{Report: b, Data: businessData(12, 30, 40, 30, 40, 6)},
	})
	require.NoError(t, err)

	require.InDelta(t, 40, find(t, out, 1, colActual).Value, 1e-9)
	require.InDelta(t, 60, find(t, out, 2, colActual).Value, 1e-9)
	require.InDelta(t, 100*40.0/60.0, find(t, out, 1, colPercentage).Value, 1e-9)

	budget := find(t, out, 1, colBudget)
	require.InDelta(t, 10, budget.Value, 1e-9)
	require.Equal(t, []statements.BudgetValue{{BudgetID: 11, Value: 4}, {BudgetID: 12, Value: 6}}, budget.BudgetValues)
	require.Equal(t, []int64{11, 12}, out.BudgetIDs)
	require.Equal(t, int64(100), out.ReportID)
}

func TestBusinessesRejectsOtherTemplate(t *testing.T) {
	target := shareReport(100, 7, 1, 2)
	other := shareReport(11, 8, 10, 20)
	err := New(nil).Businesses(&statements.Snapshot{Report: target}, &statements.ReportData{}, []Source{
		{Report: other, Data: businessData(11, 10, 20, 1, 1, 1)},
	})
	if !errors.Is(err, statements.ErrReportMismatch) {
		t.Fatalf("expected ErrReportMismatch, got %v", err)
	}
	if err := New(nil).Businesses(&statements.Snapshot{Report: target}, &statements.ReportData{}, nil); !errors.Is(err, ErrNoSources) {
		t.Fatalf("expected ErrNoSources, got %v", err)
	}
}

// occupancyReport has one percentage item whose operands both live in
// template 5.
func occupancyReport(id int64) *statements.Report {
	report := shareReport(id, 1, 10, 20)
	report.Items = append(report.Items, &statements.Item{
		ID: 30, Identifier: "occupancy", Order: 3,
		ValuesConfig: map[statements.ColumnType]formula.Expression{
			statements.ColumnPercentage: {
				Operator: formula.OpPercent,
				Arg1:     &formula.ItemRef{ItemID: "5/rooms"},
				Arg2:     &formula.ItemRef{ItemID: "5/total"},
			},
		},
	})
	return report
}

func occupancyCell(rooms, total float64) statements.ItemValue {
	return statements.ItemValue{
		ItemID: 30, ColumnID: colPercentage, Value: 100 * rooms / total,
		DependencyAccumulatedValue: total,
		DependencyOperands: []statements.DependencyOperand{
			{Identifier: "5/rooms", Value: rooms},
			{Identifier: "5/total", Value: total},
		},
		ColumnType: statements.ColumnPercentage,
	}
}

func TestPeriodRecomputesCrossReportRatio(t *testing.T) {
	snap := &statements.Snapshot{Report: occupancyReport(1)}
	mar := monthData(2024, time.March, 20, 45, 40, 90)
	mar.ItemValues = append(mar.ItemValues, occupancyCell(25, 100))
	apr := monthData(2024, time.April, 20, 65, 40, 130)
	apr.ItemValues = append(apr.ItemValues, occupancyCell(20, 50))
	start, _ := month(2024, time.March)
	_, end := month(2024, time.April)

	got, err := New(nil).Period(snap, Window{Start: start, End: end}, []*statements.ReportData{mar, apr}, nil)
	require.NoError(t, err)

	cell := find(t, got, 30, colPercentage)
	require.InDelta(t, 100*45.0/150.0, cell.Value, 1e-9)
	require.Equal(t, []statements.DependencyOperand{
		{Identifier: "5/rooms", Value: 45},
		{Identifier: "5/total", Value: 150},
	}, cell.DependencyOperands)
	require.InDelta(t, 150, cell.DependencyAccumulatedValue, 1e-9)
}

func TestBusinessesRecomputesCrossReportRatio(t *testing.T) {
	target := occupancyReport(100)
	a := occupancyReport(11)
	b := occupancyReport(12)
	dataA := businessData(11, 10, 20, 10, 20, 4)
	dataA.ItemValues = append(dataA.ItemValues, occupancyCell(25, 100))
	dataB := businessData(12, 10, 20, 30, 40, 6)
	dataB.ItemValues = append(dataB.ItemValues, occupancyCell(75, 100))

	start, end := month(2024, time.March)
	out := &statements.ReportData{PeriodType: statements.PeriodMonthly, StartDate: start, EndDate: end}
	err := New(nil).Businesses(&statements.Snapshot{Report: target}, out, []Source{
		{Report: a, Data: dataA},
		{Report: b, Data: dataB},
	})
	require.NoError(t, err)
	require.InDelta(t, 50, find(t, out, 30, colPercentage).Value, 1e-9)
}
