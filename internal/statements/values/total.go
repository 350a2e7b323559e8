package values

import (
	"sort"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// Total sums the already computed cells of the items a totals item rolls up.
type Total struct{}

// Compute implements Strategy.
func (Total) Compute(c *Cell) (*statements.ItemValue, error) {
	out := c.newValue(0, statements.ColumnActual)
	accounts := newAccountMerge()
	for _, contrib := range c.contributors() {
		cell, ok := c.contributorCell(contrib)
		if !ok {
			continue
		}
		sign := 1.0
		if contrib.NegativeForTotal {
			sign = -1
		}
		out.Value += sign * cell.Value
		out.AccumulatedValue += sign * cell.AccumulatedValue
		out.DependencyAccumulatedValue += sign * cell.DependencyAccumulatedValue
		accounts.add(cell.ItemAccountValues, sign)
	}
	out.ItemAccountValues = accounts.values()
	return out, nil
}

// BudgetTotal sums budget values of the rolled up items per budget.
type BudgetTotal struct{}

// Compute implements Strategy.
func (BudgetTotal) Compute(c *Cell) (*statements.ItemValue, error) {
	out := c.newValue(0, statements.ColumnActual)
	perBudget := make(map[int64]float64)
	for _, id := range c.BudgetIDs() {
		perBudget[id] = 0
	}
	for _, contrib := range c.contributors() {
		cell, ok := c.contributorCell(contrib)
		if !ok {
			continue
		}
		sign := 1.0
		if contrib.NegativeForTotal {
			sign = -1
		}
		out.Value += sign * cell.Value
		out.AccumulatedValue += sign * cell.AccumulatedValue
		for _, bv := range cell.BudgetValues {
			perBudget[bv.BudgetID] += sign * bv.Value
		}
	}
	out.BudgetValues = sortedBudgetValues(perBudget)
	return out, nil
}

// contributors returns the items a totals item sums: its own non-totals
// children, or its non-totals siblings when it has none. Stats items are
// ratios over other items and never roll up.
func (c *Cell) contributors() []*statements.Item {
	group := c.Item.Children
	if len(group) == 0 {
		group = c.Index.Siblings(c.Item.ID)
	}
	out := make([]*statements.Item, 0, len(group))
	for _, item := range group {
		if item == nil || item.Totals || item.ID == c.Item.ID || item.TypeConfig.Name == statements.ItemTypeStats {
			continue
		}
		out = append(out, item)
	}
	return out
}

// contributorCell reads the contributor's cell in this column. A container
// without a cell of its own contributes the cell of its totals child.
func (c *Cell) contributorCell(item *statements.Item) (*statements.ItemValue, bool) {
	if cell, ok := c.Grid.Get(item.ID, c.Column.ID); ok {
		return cell, true
	}
	for _, child := range item.Children {
		if child != nil && child.Totals {
			if cell, ok := c.Grid.Get(child.ID, c.Column.ID); ok {
				return cell, true
			}
		}
	}
	return nil, false
}

type accountMerge struct {
	amounts map[accountKey]float64
}

func newAccountMerge() *accountMerge {
	return &accountMerge{amounts: make(map[accountKey]float64)}
}

func (m *accountMerge) add(values []statements.ItemAccountValue, sign float64) {
	for _, av := range values {
		m.amounts[keyOf(av)] += sign * av.Value
	}
}

func (m *accountMerge) values() []statements.ItemAccountValue {
	if len(m.amounts) == 0 {
		return nil
	}
	out := make([]statements.ItemAccountValue, 0, len(m.amounts))
	for _, k := range sortedAccountKeys(m.amounts) {
		out = append(out, statements.ItemAccountValue{
			ChartOfAccountID:  k.coa,
			AccountingClassID: k.classID(),
			Value:             m.amounts[k],
		})
	}
	return out
}

func sortedBudgetValues(perBudget map[int64]float64) []statements.BudgetValue {
	if len(perBudget) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(perBudget))
	for id := range perBudget {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]statements.BudgetValue, 0, len(ids))
	for _, id := range ids {
		out = append(out, statements.BudgetValue{BudgetID: id, Value: perBudget[id]})
	}
	return out
}
