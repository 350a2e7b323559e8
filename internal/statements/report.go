// Package statements holds the domain model of periodic financial statements:
// report templates, their item trees and columns, and the computed period grids.
package statements

import (
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-statements/internal/statements/formula"
)

// ReportKind is the template family a report was instantiated from.
type ReportKind string

const (
	KindStandard     ReportKind = "standard"
	KindBalanceSheet ReportKind = "balance_sheet"
	KindDepartment   ReportKind = "department"
	KindVendor       ReportKind = "vendor"
)

// ColumnType is the semantic kind of number a column holds.
type ColumnType string

const (
	ColumnActual           ColumnType = "actual"
	ColumnPercentage       ColumnType = "percentage"
	ColumnGrossActual      ColumnType = "gross_actual"
	ColumnGrossPercentage  ColumnType = "gross_percentage"
	ColumnVariance         ColumnType = "variance"
	ColumnBudgetActual     ColumnType = "budget_actual"
	ColumnBudgetPercentage ColumnType = "budget_percentage"
	ColumnBudgetVariance   ColumnType = "budget_variance"
)

// ActualFamily reports whether the column holds raw amounts.
func (t ColumnType) ActualFamily() bool {
	return t == ColumnActual || t == ColumnGrossActual
}

// Gross reports whether the column belongs to the gross pair.
func (t ColumnType) Gross() bool {
	return t == ColumnGrossActual || t == ColumnGrossPercentage
}

// PercentageFamily reports whether the column holds a ratio of actual values.
func (t ColumnType) PercentageFamily() bool {
	return t == ColumnPercentage || t == ColumnGrossPercentage
}

// Budget reports whether the column derives from budgets.
func (t ColumnType) Budget() bool {
	return t == ColumnBudgetActual || t == ColumnBudgetPercentage || t == ColumnBudgetVariance
}

// Base returns the actual-family column type a derived column reads from.
func (t ColumnType) Base() ColumnType {
	switch t {
	case ColumnGrossActual, ColumnGrossPercentage:
		return ColumnGrossActual
	default:
		return ColumnActual
	}
}

// Range is the date window a column covers relative to the period.
type Range string

const (
	RangeCurrentPeriod Range = "current_period"
	RangeMTD           Range = "mtd"
	RangeYTD           Range = "ytd"
)

// Year selects the period a column reads from.
type Year string

const (
	YearCurrent        Year = "current"
	YearPrior          Year = "prior"
	YearPreviousPeriod Year = "previous_period"
)

// Column is an immutable (type, range, year) coordinate of the grid.
type Column struct {
	ID    int64      `json:"id"`
	Type  ColumnType `json:"type"`
	Range Range      `json:"range"`
	Year  Year       `json:"year"`
}

// Shape identifies a column independently of its id.
type Shape struct {
	Type  ColumnType
	Range Range
	Year  Year
}

// Shape returns the column's coordinate.
func (c Column) Shape() Shape {
	return Shape{Type: c.Type, Range: c.Range, Year: c.Year}
}

func (s Shape) String() string {
	return fmt.Sprintf("%s/%s/%s", s.Type, s.Range, s.Year)
}

// ItemType is the tag of an item's type configuration.
type ItemType string

const (
	ItemTypeNone      ItemType = ""
	ItemTypeLedger    ItemType = "quickbooks_ledger"
	ItemTypeMetric    ItemType = "metric"
	ItemTypeReference ItemType = "reference"
	ItemTypeStats     ItemType = "stats"
)

// CalculationType selects a ledger aggregation variant.
type CalculationType string

const (
	CalcDefault           CalculationType = ""
	CalcBSBalance         CalculationType = "bs_balance"
	CalcBSPriorDay        CalculationType = "bs_prior_day"
	CalcBSNetChange       CalculationType = "bs_net_change"
	CalcBankGeneralLedger CalculationType = "bank_general_ledger"
	CalcTaxCollected      CalculationType = "tax_collected_value"
	CalcDebitsOnly        CalculationType = "debits_only"
	CalcCreditsOnly       CalculationType = "credits_only"
)

// Balance reports whether the variant reads a point-in-time balance.
func (c CalculationType) Balance() bool {
	return c == CalcBSBalance || c == CalcBSPriorDay
}

// TypeConfig is the tagged configuration selecting how an item gets its value.
type TypeConfig struct {
	Name             ItemType        `json:"name,omitempty"`
	CalculationType  CalculationType `json:"calculation_type,omitempty"`
	ExcludeLedgers   []LedgerKind    `json:"exclude_ledgers,omitempty"`
	Ledger           LedgerKind      `json:"ledger,omitempty"`
	MetricCode       string          `json:"metric_code,omitempty"`
	StandardMetricID *int64          `json:"standard_metric_id,omitempty"`
	Target           string          `json:"target,omitempty"`
	SrcColumnRange   Range           `json:"src_column_range,omitempty"`
}

// Excludes reports whether the ledger kind is listed in exclude_ledgers.
func (c TypeConfig) Excludes(kind LedgerKind) bool {
	for _, k := range c.ExcludeLedgers {
		if k == kind {
			return true
		}
	}
	return false
}

// ItemAccount maps an item onto a chart of account and optional class.
type ItemAccount struct {
	ChartOfAccountID  int64  `json:"chart_of_account_id"`
	AccountingClassID *int64 `json:"accounting_class_id,omitempty"`
}

// Item is a node of the report's line item tree.
type Item struct {
	ID               int64                             `json:"id"`
	Identifier       string                            `json:"identifier"`
	Name             string                            `json:"name"`
	Order            int                               `json:"order"`
	Totals           bool                              `json:"totals,omitempty"`
	Negative         bool                              `json:"negative,omitempty"`
	NegativeForTotal bool                              `json:"negative_for_total,omitempty"`
	TypeConfig       TypeConfig                        `json:"type_config"`
	ValuesConfig     map[ColumnType]formula.Expression `json:"values_config,omitempty"`
	Accounts         []ItemAccount                     `json:"item_accounts,omitempty"`
	Children         []*Item                           `json:"children,omitempty"`
}

// Expression returns the formula configured for a column type.
func (i *Item) Expression(t ColumnType) (formula.Expression, bool) {
	if i == nil || i.ValuesConfig == nil {
		return formula.Expression{}, false
	}
	expr, ok := i.ValuesConfig[t]
	return expr, ok
}

// Report is one template instantiation for a business.
type Report struct {
	ID                           int64      `json:"id"`
	BusinessID                   int64      `json:"business_id"`
	TemplateID                   int64      `json:"template_id"`
	Name                         string     `json:"name"`
	Kind                         ReportKind `json:"kind"`
	AccountingClassCheckDisabled bool       `json:"accounting_class_check_disabled,omitempty"`
	GrossColumnsEnabled          bool       `json:"gross_columns_enabled,omitempty"`
	UseDraftBudgets              bool       `json:"use_draft_budgets,omitempty"`
	Items                        []*Item    `json:"items"`
	Columns                      []Column   `json:"columns"`
}

// Validate checks the structural invariants the engine relies on.
func (r *Report) Validate() error {
	if r == nil {
		return ErrNilReport
	}
	if len(r.Columns) == 0 {
		return ErrNoColumns
	}
	shapes := make(map[Shape]struct{}, len(r.Columns))
	for _, col := range r.Columns {
		if _, dup := shapes[col.Shape()]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateColumn, col.Shape())
		}
		shapes[col.Shape()] = struct{}{}
	}
	seen := make(map[string]struct{})
	var err error
	r.Walk(func(item, _ *Item) {
		if err != nil {
			return
		}
		if _, dup := seen[item.Identifier]; dup {
			err = fmt.Errorf("%w: %s", ErrDuplicateIdentifier, item.Identifier)
			return
		}
		seen[item.Identifier] = struct{}{}
	})
	return err
}

// Walk visits every item depth first, parents before children.
func (r *Report) Walk(fn func(item, parent *Item)) {
	if r == nil {
		return
	}
	var visit func(items []*Item, parent *Item)
	visit = func(items []*Item, parent *Item) {
		for _, item := range items {
			if item == nil {
				continue
			}
			fn(item, parent)
			visit(item.Children, item)
		}
	}
	visit(r.Items, nil)
}

// Column finds the column with the given shape.
func (r *Report) Column(shape Shape) (Column, bool) {
	if r == nil {
		return Column{}, false
	}
	for _, col := range r.Columns {
		if col.Shape() == shape {
			return col, true
		}
	}
	return Column{}, false
}

// Index is a read-only lookup structure over a report's item tree.
type Index struct {
	byID         map[int64]*Item
	byIdentifier map[string]*Item
	parents      map[int64]*Item
	roots        map[int64]*Item
	top          []*Item
}

// NewIndex builds lookups for the report's items.
func NewIndex(r *Report) *Index {
	idx := &Index{
		byID:         make(map[int64]*Item),
		byIdentifier: make(map[string]*Item),
		parents:      make(map[int64]*Item),
		roots:        make(map[int64]*Item),
	}
	if r == nil {
		return idx
	}
	idx.top = r.Items
	r.Walk(func(item, parent *Item) {
		idx.byID[item.ID] = item
		idx.byIdentifier[item.Identifier] = item
		if parent != nil {
			idx.parents[item.ID] = parent
			idx.roots[item.ID] = idx.roots[parent.ID]
		} else {
			idx.roots[item.ID] = item
		}
	})
	return idx
}

// Item returns the item with the id.
func (x *Index) Item(id int64) (*Item, bool) {
	item, ok := x.byID[id]
	return item, ok
}

// ByIdentifier returns the item with the identifier.
func (x *Index) ByIdentifier(identifier string) (*Item, bool) {
	item, ok := x.byIdentifier[identifier]
	return item, ok
}

// Parent returns the parent of the item, nil for roots.
func (x *Index) Parent(id int64) *Item {
	return x.parents[id]
}

// Root returns the top-level ancestor of the item.
func (x *Index) Root(id int64) *Item {
	return x.roots[id]
}

// Siblings returns the group the item belongs to, itself included.
func (x *Index) Siblings(id int64) []*Item {
	if parent := x.parents[id]; parent != nil {
		return parent.Children
	}
	return x.top
}

// Identifiers returns every identifier in sorted order.
func (x *Index) Identifiers() []string {
	out := make([]string, 0, len(x.byIdentifier))
	for id := range x.byIdentifier {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
