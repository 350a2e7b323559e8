package values

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

func computeLedger(t *testing.T, ctx *Context, identifier string, column int64) *statements.ItemValue {
	t.Helper()
	v, err := NewLedger().Compute(ctx.Cell(itemOf(ctx, identifier), columnOf(ctx, column)))
	require.NoError(t, err)
	require.NotNil(t, v)
	return v
}

func TestLedgerSumsMappedAccounts(t *testing.T) {
	snap := testSnapshot(marchLedger(
		statements.LedgerLine{ChartOfAccountQBOID: "q60", Amount: amount("10.25")},
		statements.LedgerLine{ChartOfAccountQBOID: "q90", Amount: amount("6.0")},
		statements.LedgerLine{ChartOfAccountQBOID: "q70", Amount: amount("4")},
		statements.LedgerLine{ChartOfAccountQBOID: "q99", Amount: amount("1000")},
		statements.LedgerLine{ChartOfAccountQBOID: "unknown", Amount: amount("1")},
	))
	ctx := newTestContext(snap, marchData())

	v := computeLedger(t, ctx, "rooms_revenue", colActual)
	require.InDelta(t, 16.25, v.Value, 1e-9)
	require.InDelta(t, 16.25, v.AccumulatedValue, 1e-9)
	require.Equal(t, statements.ColumnActual, v.ColumnType)
	require.Len(t, v.ItemAccountValues, 2)
	require.Equal(t, int64(60), v.ItemAccountValues[0].ChartOfAccountID)
	require.InDelta(t, 10.25, v.ItemAccountValues[0].Value, 1e-9)
	require.Equal(t, int64(90), v.ItemAccountValues[1].ChartOfAccountID)
}

func TestLedgerUnrelatedLinesDoNotChangeResult(t *testing.T) {
	base := []statements.LedgerLine{
		{ChartOfAccountQBOID: "q60", Amount: amount("10.25")},
		{ChartOfAccountQBOID: "q90", Amount: amount("6.0")},
	}
	first := computeLedger(t, newTestContext(testSnapshot(marchLedger(base...)), marchData()), "rooms_revenue", colActual)

	noisy := append(append([]statements.LedgerLine(nil), base...),
		statements.LedgerLine{ChartOfAccountQBOID: "q70", Amount: amount("123")},
		statements.LedgerLine{ChartOfAccountQBOID: "q80", Amount: amount("-77")},
	)
	second := computeLedger(t, newTestContext(testSnapshot(marchLedger(noisy...)), marchData()), "rooms_revenue", colActual)
	require.Equal(t, first.Value, second.Value)
}

func TestLedgerNegativeItem(t *testing.T) {
	snap := testSnapshot(marchLedger(statements.LedgerLine{ChartOfAccountQBOID: "q60", Amount: amount("10")}))
	snap.Report.Items[0].Children[0].Negative = true
	ctx := newTestContext(snap, marchData())

	require.InDelta(t, -10, computeLedger(t, ctx, "rooms_revenue", colActual).Value, 1e-9)
}

func TestLedgerGrossIsUnsigned(t *testing.T) {
	snap := testSnapshot(marchLedger(statements.LedgerLine{ChartOfAccountQBOID: "q60", Amount: amount("10")}))
	snap.Report.Items[0].Children[0].Negative = true
	ctx := newTestContext(snap, marchData())

	require.InDelta(t, 10, computeLedger(t, ctx, "rooms_revenue", colGross).Value, 1e-9)
}

func TestLedgerAccountingClassMatching(t *testing.T) {
	lines := []statements.LedgerLine{
		{ChartOfAccountQBOID: "q60", AccountingClassQBOID: "c5", Amount: amount("7")},
		{ChartOfAccountQBOID: "q60", AccountingClassQBOID: "c7", Amount: amount("3")},
		{ChartOfAccountQBOID: "q60", Amount: amount("1")},
	}

	snap := testSnapshot(marchLedger(lines...))
	snap.Report.Items[0].Children[0].Accounts = []statements.ItemAccount{{ChartOfAccountID: 60, AccountingClassID: int64p(5)}}
	ctx := newTestContext(snap, marchData())
	v := computeLedger(t, ctx, "rooms_revenue", colActual)
	require.InDelta(t, 7, v.Value, 1e-9)
	require.NotNil(t, v.ItemAccountValues[0].AccountingClassID)
	require.Equal(t, int64(5), *v.ItemAccountValues[0].AccountingClassID)

	unclassed := testSnapshot(marchLedger(lines...))
	unclassed.Report.Items[0].Children[0].Accounts = []statements.ItemAccount{{ChartOfAccountID: 60}}
	require.InDelta(t, 1, computeLedger(t, newTestContext(unclassed, marchData()), "rooms_revenue", colActual).Value, 1e-9)

	disabled := testSnapshot(marchLedger(lines...))
	disabled.Report.AccountingClassCheckDisabled = true
	disabled.Report.Items[0].Children[0].Accounts = []statements.ItemAccount{{ChartOfAccountID: 60, AccountingClassID: int64p(5)}}
	require.InDelta(t, 11, computeLedger(t, newTestContext(disabled, marchData()), "rooms_revenue", colActual).Value, 1e-9)
}

func TestLedgerDebitsAndCredits(t *testing.T) {
	lines := []statements.LedgerLine{
		{ChartOfAccountQBOID: "q60", Amount: amount("10")},
		{ChartOfAccountQBOID: "q60", Amount: amount("-4")},
		{ChartOfAccountQBOID: "q90", Amount: amount("2.5")},
	}
	snap := testSnapshot(marchLedger(lines...))
	rooms := snap.Report.Items[0].Children[0]

	rooms.TypeConfig.CalculationType = statements.CalcDebitsOnly
	require.InDelta(t, 12.5, computeLedger(t, newTestContext(snap, marchData()), "rooms_revenue", colActual).Value, 1e-9)

	rooms.TypeConfig.CalculationType = statements.CalcCreditsOnly
	require.InDelta(t, -4, computeLedger(t, newTestContext(snap, marchData()), "rooms_revenue", colActual).Value, 1e-9)
}

func TestLedgerBankDeduplicatesTransactions(t *testing.T) {
	bank := marchLedger(
		statements.LedgerLine{TransactionID: "T1", ChartOfAccountQBOID: "q60", Amount: amount("50"), TransactionType: "Deposit"},
		statements.LedgerLine{TransactionID: "T9", ChartOfAccountQBOID: "q60", Amount: amount("900"), TransactionType: "Invoice"},
	)
	bank.Kind = statements.LedgerBank
	ap := marchLedger(
		statements.LedgerLine{TransactionID: "T1", ChartOfAccountQBOID: "q60", Amount: amount("50"), TransactionType: "Deposit"},
		statements.LedgerLine{TransactionID: "T2", ChartOfAccountQBOID: "q60", Amount: amount("20"), TransactionType: "Bill Payment (Check)"},
	)
	ap.Kind = statements.LedgerAccountsPayable

	snap := testSnapshot(bank, ap)
	rooms := snap.Report.Items[0].Children[0]
	rooms.TypeConfig.CalculationType = statements.CalcBankGeneralLedger
	require.InDelta(t, 70, computeLedger(t, newTestContext(snap, marchData()), "rooms_revenue", colActual).Value, 1e-9)

	rooms.TypeConfig.ExcludeLedgers = []statements.LedgerKind{statements.LedgerAccountsPayable}
	require.InDelta(t, 50, computeLedger(t, newTestContext(snap, marchData()), "rooms_revenue", colActual).Value, 1e-9)
}

func TestLedgerTaxCollected(t *testing.T) {
	common := marchLedger(
		statements.LedgerLine{TransactionID: "I1", ChartOfAccountQBOID: "q60", Amount: amount("8"), TransactionType: "Invoice"},
		statements.LedgerLine{TransactionID: "J1", ChartOfAccountQBOID: "q60", Amount: amount("100"), TransactionType: "Journal Entry"},
	)
	revenue := marchLedger(
		statements.LedgerLine{TransactionID: "I1", ChartOfAccountQBOID: "q60", Amount: amount("8"), TransactionType: "Invoice"},
		statements.LedgerLine{TransactionID: "S1", ChartOfAccountQBOID: "q90", Amount: amount("2"), TransactionType: "Sales Receipt"},
	)
	revenue.Kind = statements.LedgerRevenue

	snap := testSnapshot(common, revenue)
	snap.Report.Items[0].Children[0].TypeConfig.CalculationType = statements.CalcTaxCollected
	require.InDelta(t, 10, computeLedger(t, newTestContext(snap, marchData()), "rooms_revenue", colActual).Value, 1e-9)
}

func TestLedgerUnknownCalculationType(t *testing.T) {
	snap := testSnapshot(marchLedger())
	snap.Report.Items[0].Children[0].TypeConfig.CalculationType = "mystery"
	ctx := newTestContext(snap, marchData())
	_, err := NewLedger().Compute(ctx.Cell(itemOf(ctx, "rooms_revenue"), columnOf(ctx, colActual)))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLedgerMissingSnapshot(t *testing.T) {
	ctx := newTestContext(testSnapshot(), marchData())
	_, err := NewLedger().Compute(ctx.Cell(itemOf(ctx, "rooms_revenue"), columnOf(ctx, colActual)))
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestLedgerYTDFallsBackToRunningTotal(t *testing.T) {
	data := marchData()
	data.ItemValues = []statements.ItemValue{{ItemID: 10, ColumnID: colActual, Value: 5, AccumulatedValue: 42}}
	ctx := newTestContext(testSnapshot(marchLedger()), data)

	v := computeLedger(t, ctx, "rooms_revenue", colActualYTD)
	require.InDelta(t, 42, v.Value, 1e-9)
}

func TestLedgerAccumulatesWithinFiscalYear(t *testing.T) {
	snap := testSnapshot(marchLedger(statements.LedgerLine{ChartOfAccountQBOID: "q60", Amount: amount("10")}))
	snap.PreviousPeriod = &statements.ReportData{
		StartDate:  day(2024, time.February, 1),
		EndDate:    day(2024, time.February, 29),
		ItemValues: []statements.ItemValue{{ItemID: 10, ColumnID: colActual, Value: 20, AccumulatedValue: 30}},
	}
	v := computeLedger(t, newTestContext(snap, marchData()), "rooms_revenue", colActual)
	require.InDelta(t, 40, v.AccumulatedValue, 1e-9)

	january := &statements.ReportData{
		PeriodType: statements.PeriodMonthly,
		StartDate:  day(2024, time.January, 1),
		EndDate:    day(2024, time.January, 31),
	}
	snap.Ledgers = []statements.GeneralLedger{{
		Kind:      statements.LedgerCommon,
		StartDate: january.StartDate,
		EndDate:   january.EndDate,
		Lines:     []statements.LedgerLine{{ChartOfAccountQBOID: "q60", Amount: amount("10")}},
	}}
	snap.PreviousPeriod = &statements.ReportData{
		StartDate:  day(2023, time.December, 1),
		EndDate:    day(2023, time.December, 31),
		ItemValues: []statements.ItemValue{{ItemID: 10, ColumnID: colActual, Value: 20, AccumulatedValue: 300}},
	}
	v = computeLedger(t, newTestContext(snap, january), "rooms_revenue", colActual)
	require.InDelta(t, 10, v.AccumulatedValue, 1e-9)
}

func TestLedgerBalanceVariants(t *testing.T) {
	closing := statements.GeneralLedger{
		Kind:      statements.LedgerBalanceSheet,
		StartDate: day(2000, time.January, 1),
		EndDate:   day(2024, time.March, 31),
		Lines:     []statements.LedgerLine{{ChartOfAccountQBOID: "q60", Amount: amount("500")}},
	}
	opening := statements.GeneralLedger{
		Kind:      statements.LedgerBalanceSheet,
		StartDate: day(2000, time.January, 1),
		EndDate:   day(2024, time.February, 29),
		Lines:     []statements.LedgerLine{{ChartOfAccountQBOID: "q60", Amount: amount("400")}},
	}
	snap := testSnapshot(closing, opening)
	rooms := snap.Report.Items[0].Children[0]

	cases := map[statements.CalculationType]float64{
		statements.CalcBSBalance:   500,
		statements.CalcBSPriorDay:  400,
		statements.CalcBSNetChange: 100,
	}
	for calc, want := range cases {
		rooms.TypeConfig.CalculationType = calc
		v := computeLedger(t, newTestContext(snap, marchData()), "rooms_revenue", colActual)
		require.InDelta(t, want, v.Value, 1e-9, string(calc))
		if calc.Balance() {
			require.InDelta(t, want, v.AccumulatedValue, 1e-9, string(calc))
		}
	}
}

func TestLedgerPriorDayYTDUsesJanuary(t *testing.T) {
	snap := testSnapshot()
	snap.Report.Items[0].Children[0].TypeConfig.CalculationType = statements.CalcBSPriorDay
	snap.JanuaryOfYear = &statements.ReportData{
		StartDate:  day(2024, time.January, 1),
		EndDate:    day(2024, time.January, 31),
		ItemValues: []statements.ItemValue{{ItemID: 10, ColumnID: colActual, Value: 250, AccumulatedValue: 250}},
	}
	v := computeLedger(t, newTestContext(snap, marchData()), "rooms_revenue", colActualYTD)
	require.InDelta(t, 250, v.Value, 1e-9)
	require.Equal(t, colActualYTD, v.ColumnID)
}
