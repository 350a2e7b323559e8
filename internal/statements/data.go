package statements

import (
	"sort"
	"time"
)

// PeriodType is the granularity of a computed period.
type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodMonthly PeriodType = "monthly"
	// PeriodRange marks windows derived by the period aggregator.
	PeriodRange PeriodType = "range"
)

// BudgetValue is one budget's contribution to a cell.
type BudgetValue struct {
	BudgetID int64   `json:"budget_id"`
	Value    float64 `json:"value"`
}

// ItemAccountValue is the drill-down amount of one matched account.
type ItemAccountValue struct {
	ChartOfAccountID  int64   `json:"chart_of_account_id"`
	AccountingClassID *int64  `json:"accounting_class_id,omitempty"`
	Value             float64 `json:"value"`
}

// DependencyOperand is the value a cross-report operand of a percentage
// formula resolved to.
type DependencyOperand struct {
	Identifier string  `json:"identifier"`
	Value      float64 `json:"value"`
}

// ItemValue is one computed cell of the grid.
type ItemValue struct {
	ItemID                     int64               `json:"item_id"`
	ColumnID                   int64               `json:"column_id"`
	Value                      float64             `json:"value"`
	AccumulatedValue           float64             `json:"accumulated_value"`
	DependencyAccumulatedValue float64             `json:"dependency_accumulated_value"`
	DependencyOperands         []DependencyOperand `json:"dependency_operands,omitempty"`
	ColumnType                 ColumnType          `json:"column_type"`
	BudgetValues               []BudgetValue       `json:"budget_values,omitempty"`
	ItemAccountValues          []ItemAccountValue  `json:"item_account_values,omitempty"`
}

// DependencyOperand returns the stored value of a cross-report operand.
func (v *ItemValue) DependencyOperand(identifier string) (float64, bool) {
	if v == nil {
		return 0, false
	}
	for _, op := range v.DependencyOperands {
		if op.Identifier == identifier {
			return op.Value, true
		}
	}
	return 0, false
}

// SetDependencyOperand records value for identifier, replacing an earlier
// entry, and keeps the list sorted by identifier.
func SetDependencyOperand(ops []DependencyOperand, identifier string, value float64) []DependencyOperand {
	for i := range ops {
		if ops[i].Identifier == identifier {
			ops[i].Value = value
			return ops
		}
	}
	ops = append(ops, DependencyOperand{Identifier: identifier, Value: value})
	sort.Slice(ops, func(i, j int) bool { return ops[i].Identifier < ops[j].Identifier })
	return ops
}

// BudgetValue returns the value contributed by the budget.
func (v *ItemValue) BudgetValue(budgetID int64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	for _, bv := range v.BudgetValues {
		if bv.BudgetID == budgetID {
			return bv.Value, true
		}
	}
	return 0, false
}

// Clone returns a deep copy of the cell.
func (v ItemValue) Clone() ItemValue {
	out := v
	if v.BudgetValues != nil {
		out.BudgetValues = append([]BudgetValue(nil), v.BudgetValues...)
	}
	if v.DependencyOperands != nil {
		out.DependencyOperands = append([]DependencyOperand(nil), v.DependencyOperands...)
	}
	if v.ItemAccountValues != nil {
		out.ItemAccountValues = make([]ItemAccountValue, len(v.ItemAccountValues))
		for i, av := range v.ItemAccountValues {
			out.ItemAccountValues[i] = av
			if av.AccountingClassID != nil {
				id := *av.AccountingClassID
				out.ItemAccountValues[i].AccountingClassID = &id
			}
		}
	}
	return out
}

// ReportData is one computed period of a report.
type ReportData struct {
	ID          int64       `json:"id"`
	ReportID    int64       `json:"report_id"`
	BusinessID  int64       `json:"business_id"`
	PeriodType  PeriodType  `json:"period_type"`
	StartDate   time.Time   `json:"start_date"`
	EndDate     time.Time   `json:"end_date"`
	ItemValues  []ItemValue `json:"item_values"`
	BudgetIDs   []int64     `json:"budget_ids"`
	UpdateState UpdateState `json:"update_state"`
	ErrorMsg    string      `json:"error_msg,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Cell returns the stored value for (item, column).
func (d *ReportData) Cell(itemID, columnID int64) (*ItemValue, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.ItemValues {
		if d.ItemValues[i].ItemID == itemID && d.ItemValues[i].ColumnID == columnID {
			return &d.ItemValues[i], true
		}
	}
	return nil, false
}

// Year returns the fiscal year of the period end.
func (d *ReportData) Year() int {
	if d == nil {
		return 0
	}
	return d.EndDate.Year()
}

// CellKey addresses one grid cell.
type CellKey struct {
	ItemID   int64
	ColumnID int64
}

// Grid is the per-batch index of computed cells. Strategies read cells written
// earlier in the same batch through it; the driver flushes it at the end.
type Grid struct {
	cells map[CellKey]*ItemValue
}

// NewGrid seeds a grid from existing values.
func NewGrid(values []ItemValue) *Grid {
	g := &Grid{cells: make(map[CellKey]*ItemValue, len(values))}
	for _, v := range values {
		g.Put(v)
	}
	return g
}

// Get returns the cell for (item, column).
func (g *Grid) Get(itemID, columnID int64) (*ItemValue, bool) {
	if g == nil {
		return nil, false
	}
	v, ok := g.cells[CellKey{ItemID: itemID, ColumnID: columnID}]
	return v, ok
}

// Put stores the cell, replacing any previous value at the same key.
func (g *Grid) Put(v ItemValue) {
	cell := v.Clone()
	g.cells[CellKey{ItemID: v.ItemID, ColumnID: v.ColumnID}] = &cell
}

// Delete removes the cell.
func (g *Grid) Delete(itemID, columnID int64) {
	delete(g.cells, CellKey{ItemID: itemID, ColumnID: columnID})
}

// Len returns the number of cells.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.cells)
}

// Values returns the cells sorted by item then column.
func (g *Grid) Values() []ItemValue {
	if g == nil {
		return nil
	}
	out := make([]ItemValue, 0, len(g.cells))
	for _, v := range g.cells {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].ColumnID < out[j].ColumnID
	})
	return out
}
