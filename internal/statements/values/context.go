// Package values computes single grid cells. Each strategy derives one
// ItemValue from an immutable batch context and the cells already written to
// the batch grid.
package values

import (
	"errors"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/formula"
)

var (
	// ErrUpstreamUnavailable marks a cell whose input snapshot is missing. The
	// cell is left empty and the batch continues.
	ErrUpstreamUnavailable = errors.New("values: upstream data unavailable")
	// ErrInvalidConfig marks a cell whose item configuration is malformed.
	ErrInvalidConfig = errors.New("values: invalid item configuration")
)

// Context is the read-only state shared by every cell of one batch. Only Grid
// changes while a batch runs.
type Context struct {
	Snapshot *statements.Snapshot
	Report   *statements.Report
	Data     *statements.ReportData
	Grid     *statements.Grid
	Index    *statements.Index
	// Recompute marks a pass over an aggregated grid. Cross-report operands
	// then come from the cell's stored dependency value instead of the
	// dependency snapshot.
	Recompute bool

	coaByQBO        map[string]statements.ChartOfAccount
	coaByID         map[int64]statements.ChartOfAccount
	classByExternal map[string]statements.AccountingClass
	classByID       map[int64]statements.AccountingClass
	budgets         []statements.Budget
	depIndexes      map[int64]*statements.Index
}

// NewContext indexes the snapshot for one batch over data.
func NewContext(snap *statements.Snapshot, data *statements.ReportData, grid *statements.Grid) *Context {
	if snap == nil {
		snap = &statements.Snapshot{}
	}
	if grid == nil {
		grid = statements.NewGrid(nil)
	}
	c := &Context{
		Snapshot:        snap,
		Report:          snap.Report,
		Data:            data,
		Grid:            grid,
		Index:           statements.NewIndex(snap.Report),
		coaByQBO:        make(map[string]statements.ChartOfAccount, len(snap.ChartOfAccounts)),
		coaByID:         make(map[int64]statements.ChartOfAccount, len(snap.ChartOfAccounts)),
		classByExternal: make(map[string]statements.AccountingClass, len(snap.Classes)),
		classByID:       make(map[int64]statements.AccountingClass, len(snap.Classes)),
		depIndexes:      make(map[int64]*statements.Index),
	}
	for _, coa := range snap.ChartOfAccounts {
		c.coaByQBO[coa.QBOID] = coa
		c.coaByID[coa.ChartOfAccountID] = coa
	}
	for _, cls := range snap.Classes {
		c.classByExternal[cls.ExternalID] = cls
		c.classByID[cls.ID] = cls
	}
	if data != nil {
		c.budgets = snap.BudgetsForYear(data.Year())
	}
	return c
}

// Budgets returns the budgets considered for the period, ordered by id.
func (c *Context) Budgets() []statements.Budget {
	return c.budgets
}

// BudgetIDs returns the ids of Budgets. A recompute pass without budget
// snapshots keeps the ids already recorded on the data.
func (c *Context) BudgetIDs() []int64 {
	if len(c.budgets) == 0 && c.Recompute && c.Data != nil {
		return append([]int64(nil), c.Data.BudgetIDs...)
	}
	ids := make([]int64, 0, len(c.budgets))
	for _, b := range c.budgets {
		ids = append(ids, b.ID)
	}
	return ids
}

// Cell binds the context to one (item, column) coordinate.
func (c *Context) Cell(item *statements.Item, column statements.Column) *Cell {
	return &Cell{Context: c, Item: item, Column: column}
}

// Cell is the unit of work handed to a strategy.
type Cell struct {
	*Context
	Item   *statements.Item
	Column statements.Column
}

func (c *Cell) newValue(value float64, bucket statements.ColumnType) *statements.ItemValue {
	return &statements.ItemValue{
		ItemID:     c.Item.ID,
		ColumnID:   c.Column.ID,
		Value:      value,
		ColumnType: bucket,
	}
}

// shape returns the cell's column shape with another type and range.
func (c *Cell) shape(t statements.ColumnType, r statements.Range, y statements.Year) statements.Shape {
	return statements.Shape{Type: t, Range: r, Year: y}
}

// window returns the inclusive date range the column covers.
func (c *Cell) window(r statements.Range) (time.Time, time.Time) {
	end := c.Data.EndDate
	switch r {
	case statements.RangeMTD:
		return statements.MonthStart(end), end
	case statements.RangeYTD:
		return statements.YearStart(end), end
	default:
		return c.Data.StartDate, end
	}
}

// valueAt returns the batch cell of item in the column of shape.
func (c *Context) valueAt(itemID int64, shape statements.Shape) (*statements.ItemValue, bool) {
	col, ok := c.Report.Column(shape)
	if !ok {
		return nil, false
	}
	return c.Grid.Get(itemID, col.ID)
}

// sibling returns this item's cell in another column of the batch.
func (c *Cell) sibling(shape statements.Shape) (*statements.ItemValue, bool) {
	return c.valueAt(c.Item.ID, shape)
}

// signFactor is -1 for negative items on signed columns.
func (c *Cell) signFactor() float64 {
	if c.Item.Negative && !c.Column.Type.Gross() {
		return -1
	}
	return 1
}

// previousAccumulated returns the running total carried from the previous
// period of the same fiscal year.
func (c *Cell) previousAccumulated() float64 {
	prev := c.Snapshot.PreviousPeriod
	if prev == nil || prev.Year() != c.Data.StartDate.Year() || !prev.EndDate.Before(c.Data.StartDate) {
		return 0
	}
	if cell, ok := prev.Cell(c.Item.ID, c.Column.ID); ok {
		return cell.AccumulatedValue
	}
	return 0
}

// accumulated derives the fiscal-year running total of an additive value.
func (c *Cell) accumulated(value float64) float64 {
	switch c.Column.Range {
	case statements.RangeYTD:
		return value
	case statements.RangeMTD:
		if cur, ok := c.sibling(c.shape(c.Column.Type, statements.RangeCurrentPeriod, c.Column.Year)); ok {
			return cur.AccumulatedValue
		}
		return value
	default:
		return c.previousAccumulated() + value
	}
}

// fallbackToCurrent answers a wider-range cell whose snapshot is missing with
// the running total of the current period cell.
func (c *Cell) fallbackToCurrent(bucket statements.ColumnType) (*statements.ItemValue, bool) {
	if c.Column.Range != statements.RangeYTD {
		return nil, false
	}
	cur, ok := c.sibling(c.shape(c.Column.Type, statements.RangeCurrentPeriod, c.Column.Year))
	if !ok {
		return nil, false
	}
	out := c.newValue(cur.AccumulatedValue, bucket)
	out.AccumulatedValue = cur.AccumulatedValue
	return out, true
}

// dependencyIndex returns the cached item index of a dependency report.
func (c *Context) dependencyIndex(templateID int64, report *statements.Report) *statements.Index {
	if idx, ok := c.depIndexes[templateID]; ok {
		return idx
	}
	idx := statements.NewIndex(report)
	c.depIndexes[templateID] = idx
	return idx
}

// crossCell resolves "template/identifier" in the dependency report's column
// of the same shape.
func (c *Context) crossCell(ref string, shape statements.Shape) (*statements.ItemValue, bool) {
	tpl, ident, ok := formula.SplitCrossReport(ref)
	if !ok {
		return nil, false
	}
	templateID, err := strconv.ParseInt(tpl, 10, 64)
	if err != nil {
		return nil, false
	}
	dep, ok := c.Snapshot.Dependency(templateID)
	if !ok {
		return nil, false
	}
	item, ok := c.dependencyIndex(templateID, dep.Report).ByIdentifier(ident)
	if !ok {
		return nil, false
	}
	col, ok := dep.Report.Column(shape)
	if !ok {
		return nil, false
	}
	return dep.Data.Cell(item.ID, col.ID)
}

// lookup resolves identifiers against the column of shape, reading field from
// each resolved cell.
func (c *Context) lookup(shape statements.Shape, field func(*statements.ItemValue) float64) formula.Lookup {
	return func(identifier string) (float64, bool) {
		if formula.IsCrossReport(identifier) {
			cell, ok := c.crossCell(identifier, shape)
			if !ok {
				return 0, false
			}
			return field(cell), true
		}
		item, ok := c.Index.ByIdentifier(identifier)
		if !ok {
			return 0, false
		}
		cell, ok := c.valueAt(item.ID, shape)
		if !ok {
			return 0, false
		}
		return field(cell), true
	}
}

func cellValue(v *statements.ItemValue) float64 {
	return v.Value
}

func cellAccumulated(v *statements.ItemValue) float64 {
	return v.AccumulatedValue
}
