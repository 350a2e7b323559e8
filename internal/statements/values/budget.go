package values

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/formula"
)

// BudgetActual sums the monthly budget rows matched to a ledger or metric item
// over the months the column covers, one value per budget. The cell's Value is
// the first budget's.
type BudgetActual struct{}

// Compute implements Strategy.
func (BudgetActual) Compute(c *Cell) (*statements.ItemValue, error) {
	if len(c.Budgets()) == 0 {
		return nil, fmt.Errorf("%w: no budgets for %d", ErrUpstreamUnavailable, c.Data.Year())
	}
	match := c.budgetMatcher()
	if match == nil {
		return nil, nil
	}
	return c.budgetCell(match), nil
}

// budgetCell builds the per-budget sums of the rows accepted by match.
func (c *Cell) budgetCell(match func(statements.BudgetItem) bool) *statements.ItemValue {
	weights := c.budgetWeights(c.Column.Range)
	ytd := c.budgetWeights(statements.RangeYTD)
	sign := c.signFactor()
	out := c.newValue(0, statements.ColumnActual)
	for i, b := range c.Budgets() {
		total, accumulated := 0.0, 0.0
		for _, row := range b.Items(c.Report.UseDraftBudgets) {
			if !match(row) {
				continue
			}
			for m := 0; m < 12; m++ {
				total += row.Months[m] * weights[m]
				accumulated += row.Months[m] * ytd[m]
			}
		}
		out.BudgetValues = append(out.BudgetValues, statements.BudgetValue{BudgetID: b.ID, Value: sign * total})
		if i == 0 {
			out.Value = sign * total
			out.AccumulatedValue = sign * accumulated
		}
	}
	return out
}

// budgetMatcher selects the budget rows of the item: by account and class for
// ledger items, by standard metric for metric items.
func (c *Cell) budgetMatcher() func(statements.BudgetItem) bool {
	switch c.Item.TypeConfig.Name {
	case statements.ItemTypeMetric:
		metricID := c.Item.TypeConfig.StandardMetricID
		if metricID == nil {
			return nil
		}
		return func(row statements.BudgetItem) bool {
			return row.StandardMetricID != nil && *row.StandardMetricID == *metricID
		}
	case statements.ItemTypeLedger:
		return func(row statements.BudgetItem) bool {
			if row.ChartOfAccountID == nil {
				return false
			}
			for _, acc := range c.Item.Accounts {
				if acc.ChartOfAccountID != *row.ChartOfAccountID {
					continue
				}
				if c.Report.AccountingClassCheckDisabled {
					return true
				}
				if acc.AccountingClassID == nil {
					if row.AccountingClassID == nil {
						return true
					}
					continue
				}
				if row.AccountingClassID != nil && *row.AccountingClassID == *acc.AccountingClassID {
					return true
				}
			}
			return false
		}
	}
	return nil
}

// budgetWeights returns the fraction of each month's target the range covers.
// Daily periods prorate the current month by day.
func (c *Cell) budgetWeights(r statements.Range) [12]float64 {
	var w [12]float64
	end := c.Data.EndDate
	month := int(end.Month()) - 1
	fraction := 1.0
	if c.Data.PeriodType == statements.PeriodDaily {
		days := float64(statements.DaysInMonth(end))
		if r == statements.RangeCurrentPeriod {
			w[month] = 1 / days
			return w
		}
		fraction = float64(end.Day()) / days
	}
	switch r {
	case statements.RangeYTD:
		for m := 0; m < month; m++ {
			w[m] = 1
		}
		w[month] = fraction
	case statements.RangeMTD:
		w[month] = fraction
	default:
		first := 0
		if c.Data.StartDate.Year() == end.Year() {
			first = int(c.Data.StartDate.Month()) - 1
		}
		if c.Data.PeriodType != statements.PeriodRange {
			first = month
		}
		for m := first; m <= month; m++ {
			w[m] = 1
		}
	}
	return w
}

// BudgetPercentage applies the item's percentage formula to budget_actual
// values, once per budget.
type BudgetPercentage struct{}

// Compute implements Strategy.
func (BudgetPercentage) Compute(c *Cell) (*statements.ItemValue, error) {
	expr, ok := c.Item.Expression(statements.ColumnPercentage)
	if !ok {
		return nil, nil
	}
	if err := expr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	ids := c.BudgetIDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no budgets for %d", ErrUpstreamUnavailable, c.Data.Year())
	}
	shape := c.shape(statements.ColumnBudgetActual, c.Column.Range, statements.YearCurrent)
	out := c.newValue(0, statements.ColumnPercentage)
	for i, id := range ids {
		budgetID := id
		value, err := formula.Evaluate(expr, c.lookup(shape, func(v *statements.ItemValue) float64 {
			if bv, ok := v.BudgetValue(budgetID); ok {
				return bv
			}
			return v.Value
		}))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		out.BudgetValues = append(out.BudgetValues, statements.BudgetValue{BudgetID: budgetID, Value: value})
		if i == 0 {
			out.Value = value
		}
	}
	return out, nil
}

// BudgetVariance is actual minus budget_actual over the same range, per budget.
type BudgetVariance struct{}

// Compute implements Strategy.
func (BudgetVariance) Compute(c *Cell) (*statements.ItemValue, error) {
	budgetShape := c.shape(statements.ColumnBudgetActual, c.Column.Range, statements.YearCurrent)
	if _, ok := c.Report.Column(budgetShape); !ok {
		return nil, fmt.Errorf("%w: no %s column", ErrUpstreamUnavailable, budgetShape)
	}
	budget, ok := c.sibling(budgetShape)
	if !ok {
		return nil, nil
	}
	actual := 0.0
	actualAccumulated := 0.0
	if cell, ok := c.sibling(c.shape(statements.ColumnActual, c.Column.Range, statements.YearCurrent)); ok {
		actual = cell.Value
		actualAccumulated = cell.AccumulatedValue
	}
	out := c.newValue(actual-budget.Value, statements.ColumnVariance)
	out.AccumulatedValue = actualAccumulated - budget.AccumulatedValue
	for _, bv := range budget.BudgetValues {
		out.BudgetValues = append(out.BudgetValues, statements.BudgetValue{BudgetID: bv.BudgetID, Value: actual - bv.Value})
	}
	return out, nil
}
