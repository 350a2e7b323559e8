package statements

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{
		ID: 1,
		Items: []*Item{
			{ID: 1, Identifier: "revenue", Children: []*Item{
				{ID: 2, Identifier: "rooms"},
				{ID: 3, Identifier: "food"},
				{ID: 4, Identifier: "total_revenue", Totals: true},
			}},
			{ID: 5, Identifier: "net"},
		},
		Columns: []Column{
			{ID: 10, Type: ColumnActual, Range: RangeCurrentPeriod, Year: YearCurrent},
			{ID: 11, Type: ColumnPercentage, Range: RangeCurrentPeriod, Year: YearCurrent},
		},
	}
}

func TestReportValidate(t *testing.T) {
	require.NoError(t, sampleReport().Validate())

	var nilReport *Report
	require.ErrorIs(t, nilReport.Validate(), ErrNilReport)

	noCols := sampleReport()
	noCols.Columns = nil
	require.ErrorIs(t, noCols.Validate(), ErrNoColumns)

	dupCol := sampleReport()
	dupCol.Columns = append(dupCol.Columns, Column{ID: 12, Type: ColumnActual, Range: RangeCurrentPeriod, Year: YearCurrent})
	require.ErrorIs(t, dupCol.Validate(), ErrDuplicateColumn)

	dupItem := sampleReport()
	dupItem.Items[1].Identifier = "rooms"
	if err := dupItem.Validate(); !errors.Is(err, ErrDuplicateIdentifier) {
		t.Fatalf("expected duplicate identifier, got %v", err)
	}
}

func TestIndexLookups(t *testing.T) {
	idx := NewIndex(sampleReport())

	item, ok := idx.ByIdentifier("food")
	require.True(t, ok)
	require.Equal(t, int64(3), item.ID)
	require.Equal(t, int64(1), idx.Parent(3).ID)
	require.Equal(t, "revenue", idx.Root(4).Identifier)
	require.Nil(t, idx.Parent(5))
	require.Len(t, idx.Siblings(2), 3)
	require.Len(t, idx.Siblings(5), 2)
	require.Equal(t, []string{"food", "net", "revenue", "rooms", "total_revenue"}, idx.Identifiers())
}

func TestGridValuesSorted(t *testing.T) {
	g := NewGrid(nil)
	g.Put(ItemValue{ItemID: 2, ColumnID: 11, Value: 1})
	g.Put(ItemValue{ItemID: 1, ColumnID: 11, Value: 2})
	g.Put(ItemValue{ItemID: 1, ColumnID: 10, Value: 3})
	g.Put(ItemValue{ItemID: 1, ColumnID: 10, Value: 4})

	values := g.Values()
	require.Len(t, values, 3)
	require.Equal(t, CellKey{ItemID: 1, ColumnID: 10}, CellKey{ItemID: values[0].ItemID, ColumnID: values[0].ColumnID})
	require.Equal(t, 4.0, values[0].Value)
	require.Equal(t, int64(2), values[2].ItemID)

	g.Delete(2, 11)
	require.Equal(t, 2, g.Len())
}

func TestSnapshotLedgerLookup(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	snap := &Snapshot{Ledgers: []GeneralLedger{
		{Kind: LedgerCommon, StartDate: start, EndDate: end, Lines: []LedgerLine{{Amount: decimal.NewFromInt(1)}}},
		{Kind: LedgerBalanceSheet, StartDate: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: end},
	}}

	_, ok := snap.Ledger(LedgerCommon, start, end)
	require.True(t, ok)
	_, ok = snap.Ledger(LedgerRevenue, start, end)
	require.False(t, ok)
	_, ok = snap.LedgerEndingAt(LedgerBalanceSheet, end)
	require.True(t, ok)
}

func TestMetricSeries(t *testing.T) {
	series := MetricSeries{"occupied_rooms": {
		{Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Value: 4},
		{Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Value: 6},
		{Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), Value: 100},
	}}
	v, ok := series.Metric("occupied_rooms", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	require.Equal(t, 10.0, v)

	_, ok = series.Metric("adr", time.Time{}, time.Now())
	require.False(t, ok)
}

func TestDateHelpers(t *testing.T) {
	d := time.Date(2024, 2, 17, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 29, DaysInMonth(d))
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), MonthStart(d))
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), YearStart(d))
}
