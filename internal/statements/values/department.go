package values

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// Root identifiers of a department report.
const (
	SectionRevenue  = "revenue"
	SectionExpenses = "expenses"
	SectionProfit   = "profit"
)

// sectionAccTypes lists the chart of account types each section reads.
var sectionAccTypes = map[string]map[string]struct{}{
	SectionRevenue: {
		"Income":       {},
		"Other Income": {},
	},
	SectionExpenses: {
		"Expense":            {},
		"Other Expense":      {},
		"Cost of Goods Sold": {},
	},
}

// sectionLedgers lists the ledgers a section reads, first found wins.
var sectionLedgers = map[string][]statements.LedgerKind{
	SectionRevenue:  {statements.LedgerRevenue, statements.LedgerCommon},
	SectionExpenses: {statements.LedgerExpenses, statements.LedgerCommon},
}

// DepartmentLedger aggregates ledger lines per department class inside the
// revenue and expenses sections. Profit items are revenue minus expenses of
// the same classes. Items outside the sections use the plain ledger strategy.
type DepartmentLedger struct {
	fallback *Ledger
}

// NewDepartmentLedger wraps the plain ledger strategy.
func NewDepartmentLedger(fallback *Ledger) *DepartmentLedger {
	return &DepartmentLedger{fallback: fallback}
}

// Compute implements Strategy.
func (d *DepartmentLedger) Compute(c *Cell) (*statements.ItemValue, error) {
	section := c.section()
	var (
		sum   *ledgerSum
		found bool
	)
	switch section {
	case SectionRevenue, SectionExpenses:
		sum, found = c.departmentSum(section)
	case SectionProfit:
		revenue, revOK := c.departmentSum(SectionRevenue)
		expenses, expOK := c.departmentSum(SectionExpenses)
		sum, found = revenue.sub(expenses), revOK || expOK
	default:
		if d.fallback == nil {
			return nil, nil
		}
		return d.fallback.Compute(c)
	}
	if !found {
		if out, ok := c.fallbackToCurrent(statements.ColumnActual); ok {
			return out, nil
		}
		return nil, fmt.Errorf("%w: no %s ledger", ErrUpstreamUnavailable, section)
	}
	sign := c.signFactor()
	out := c.newValue(sum.value(sign), statements.ColumnActual)
	out.AccumulatedValue = c.accumulated(out.Value)
	out.ItemAccountValues = sum.accountValues(sign)
	return out, nil
}

// section returns the identifier of the item's root.
func (c *Cell) section() string {
	if root := c.Index.Root(c.Item.ID); root != nil {
		return root.Identifier
	}
	return ""
}

// departmentClasses expands the item's classes with every descendant class.
func (c *Cell) departmentClasses() map[int64]struct{} {
	out := make(map[int64]struct{})
	var queue []string
	for _, acc := range c.Item.Accounts {
		if acc.AccountingClassID == nil {
			continue
		}
		if cls, ok := c.classByID[*acc.AccountingClassID]; ok {
			if _, seen := out[cls.ID]; !seen {
				out[cls.ID] = struct{}{}
				queue = append(queue, cls.ExternalID)
			}
		}
	}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, cls := range c.Snapshot.Classes {
			if cls.ParentExternalID != parent {
				continue
			}
			if _, seen := out[cls.ID]; seen {
				continue
			}
			out[cls.ID] = struct{}{}
			queue = append(queue, cls.ExternalID)
		}
	}
	return out
}

// departmentAccounts returns the chart of account ids the item restricts
// itself to. Empty means every account of the section.
func (c *Cell) departmentAccounts() map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, acc := range c.Item.Accounts {
		if acc.ChartOfAccountID != 0 {
			out[acc.ChartOfAccountID] = struct{}{}
		}
	}
	return out
}

func (c *Cell) departmentSum(section string) (*ledgerSum, bool) {
	sum := newLedgerSum()
	start, end := c.window(c.Column.Range)
	ledger, ok := c.sectionLedger(section, start, end)
	if !ok {
		return sum, false
	}
	classes := c.departmentClasses()
	accounts := c.departmentAccounts()
	types := sectionAccTypes[section]
	for _, line := range ledger.Lines {
		coa, ok := c.coaByQBO[line.ChartOfAccountQBOID]
		if !ok {
			continue
		}
		if _, ok := types[coa.AccType]; !ok {
			continue
		}
		if len(accounts) > 0 {
			if _, ok := accounts[coa.ChartOfAccountID]; !ok {
				continue
			}
		}
		cls, ok := c.classByExternal[line.AccountingClassQBOID]
		if !ok {
			continue
		}
		if _, ok := classes[cls.ID]; !ok {
			continue
		}
		sum.add(accountKey{coa: coa.ChartOfAccountID, class: cls.ID, hasClass: true}, line.Amount)
	}
	return sum, true
}

func (c *Cell) sectionLedger(section string, start, end time.Time) (*statements.GeneralLedger, bool) {
	for _, kind := range sectionLedgers[section] {
		if c.Item.TypeConfig.Excludes(kind) {
			continue
		}
		if ledger, ok := c.Snapshot.Ledger(kind, start, end); ok {
			return ledger, true
		}
	}
	return nil, false
}

// DepartmentBudget scopes budget rows by the department's classes and the
// section's account types. Profit items are revenue minus expenses per budget.
type DepartmentBudget struct{}

// Compute implements Strategy.
func (DepartmentBudget) Compute(c *Cell) (*statements.ItemValue, error) {
	if len(c.Budgets()) == 0 {
		return nil, fmt.Errorf("%w: no budgets for %d", ErrUpstreamUnavailable, c.Data.Year())
	}
	switch section := c.section(); section {
	case SectionRevenue, SectionExpenses:
		return c.budgetCell(c.departmentBudgetMatcher(section)), nil
	case SectionProfit:
		revenue := c.budgetCell(c.departmentBudgetMatcher(SectionRevenue))
		expenses := c.budgetCell(c.departmentBudgetMatcher(SectionExpenses))
		out := c.newValue(revenue.Value-expenses.Value, statements.ColumnActual)
		out.AccumulatedValue = revenue.AccumulatedValue - expenses.AccumulatedValue
		for i, bv := range revenue.BudgetValues {
			out.BudgetValues = append(out.BudgetValues, statements.BudgetValue{
				BudgetID: bv.BudgetID,
				Value:    bv.Value - expenses.BudgetValues[i].Value,
			})
		}
		return out, nil
	default:
		return BudgetActual{}.Compute(c)
	}
}

func (c *Cell) departmentBudgetMatcher(section string) func(statements.BudgetItem) bool {
	classes := c.departmentClasses()
	accounts := c.departmentAccounts()
	types := sectionAccTypes[section]
	return func(row statements.BudgetItem) bool {
		if row.ChartOfAccountID == nil || row.AccountingClassID == nil {
			return false
		}
		if _, ok := classes[*row.AccountingClassID]; !ok {
			return false
		}
		if len(accounts) > 0 {
			if _, ok := accounts[*row.ChartOfAccountID]; !ok {
				return false
			}
		}
		coa, ok := c.coaByID[*row.ChartOfAccountID]
		if !ok {
			return false
		}
		_, ok = types[coa.AccType]
		return ok
	}
}
