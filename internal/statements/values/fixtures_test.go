package values

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/formula"
)

const (
	colActual int64 = iota + 1
	colActualYTD
	colPercentage
	colBudget
	colBudgetYTD
	colBudgetVariance
	colGross
	colActualPrior
	colVariance
	colBudgetPercentage
)

func int64p(v int64) *int64 { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testColumns() []statements.Column {
	return []statements.Column{
		{ID: colActual, Type: statements.ColumnActual, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
		{ID: colActualYTD, Type: statements.ColumnActual, Range: statements.RangeYTD, Year: statements.YearCurrent},
		{ID: colPercentage, Type: statements.ColumnPercentage, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
		{ID: colBudget, Type: statements.ColumnBudgetActual, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
		{ID: colBudgetYTD, Type: statements.ColumnBudgetActual, Range: statements.RangeYTD, Year: statements.YearCurrent},
		{ID: colBudgetVariance, Type: statements.ColumnBudgetVariance, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
		{ID: colGross, Type: statements.ColumnGrossActual, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
		{ID: colActualPrior, Type: statements.ColumnActual, Range: statements.RangeCurrentPeriod, Year: statements.YearPrior},
		{ID: colVariance, Type: statements.ColumnVariance, Range: statements.RangeCurrentPeriod, Year: statements.YearPrior},
		{ID: colBudgetPercentage, Type: statements.ColumnBudgetPercentage, Range: statements.RangeCurrentPeriod, Year: statements.YearCurrent},
	}
}

// testReport is a small P&L: revenue{rooms_revenue, food, total_revenue}.
func testReport() *statements.Report {
	ratio := formula.Expression{
		Operator: formula.OpPercent,
		Arg1:     &formula.ItemRef{ItemID: "rooms_revenue"},
		Arg2:     &formula.ItemRef{ItemID: "rooms_revenue"},
	}
	return &statements.Report{
		ID:         1,
		BusinessID: 9,
		TemplateID: 3,
		Kind:       statements.KindStandard,
		Items: []*statements.Item{
			{ID: 1, Identifier: "revenue", Children: []*statements.Item{
				{
					ID: 10, Identifier: "rooms_revenue", Order: 1,
					TypeConfig:   statements.TypeConfig{Name: statements.ItemTypeLedger},
					Accounts:     []statements.ItemAccount{{ChartOfAccountID: 60}, {ChartOfAccountID: 90}},
					ValuesConfig: map[statements.ColumnType]formula.Expression{statements.ColumnPercentage: ratio},
				},
				{
					ID: 11, Identifier: "food", Order: 2,
					TypeConfig: statements.TypeConfig{Name: statements.ItemTypeLedger},
					Accounts:   []statements.ItemAccount{{ChartOfAccountID: 70}},
				},
				{ID: 12, Identifier: "total_revenue", Order: 3, Totals: true},
			}},
		},
		Columns: testColumns(),
	}
}

func testChart() []statements.ChartOfAccount {
	return []statements.ChartOfAccount{
		{ID: 1, ChartOfAccountID: 60, QBOID: "q60", AccType: "Income"},
		{ID: 2, ChartOfAccountID: 70, QBOID: "q70", AccType: "Income"},
		{ID: 3, ChartOfAccountID: 80, QBOID: "q80", AccType: "Expense"},
		{ID: 4, ChartOfAccountID: 90, QBOID: "q90", AccType: "Income"},
		{ID: 5, ChartOfAccountID: 99, QBOID: "q99", AccType: "Income"},
	}
}

func testClasses() []statements.AccountingClass {
	return []statements.AccountingClass{
		{ID: 5, ExternalID: "c5", Name: "Rooms"},
		{ID: 6, ExternalID: "c6", Name: "Suites", ParentExternalID: "c5"},
		{ID: 7, ExternalID: "c7", Name: "Spa"},
	}
}

func marchData() *statements.ReportData {
	return &statements.ReportData{
		ID:         100,
		ReportID:   1,
		BusinessID: 9,
		PeriodType: statements.PeriodMonthly,
		StartDate:  day(2024, time.March, 1),
		EndDate:    day(2024, time.March, 31),
	}
}

func marchLedger(lines ...statements.LedgerLine) statements.GeneralLedger {
	return statements.GeneralLedger{
		Kind:      statements.LedgerCommon,
		StartDate: day(2024, time.March, 1),
		EndDate:   day(2024, time.March, 31),
		Lines:     lines,
	}
}

func testSnapshot(ledgers ...statements.GeneralLedger) *statements.Snapshot {
	return &statements.Snapshot{
		Report:          testReport(),
		ChartOfAccounts: testChart(),
		Classes:         testClasses(),
		Ledgers:         ledgers,
		Today:           day(2024, time.April, 2),
	}
}

func newTestContext(snap *statements.Snapshot, data *statements.ReportData) *Context {
	return NewContext(snap, data, statements.NewGrid(data.ItemValues))
}

func itemOf(c *Context, identifier string) *statements.Item {
	item, ok := c.Index.ByIdentifier(identifier)
	if !ok {
		panic("unknown item " + identifier)
	}
	return item
}

func columnOf(c *Context, id int64) statements.Column {
	for _, col := range c.Report.Columns {
		if col.ID == id {
			return col
		}
	}
	panic("unknown column")
}
