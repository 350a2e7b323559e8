package values

import (
	"fmt"
	"sort"
	"sync"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// Strategy computes one cell. A nil value with a nil error means the cell has
// no value and is left empty.
type Strategy interface {
	Compute(c *Cell) (*statements.ItemValue, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(c *Cell) (*statements.ItemValue, error)

// Compute implements Strategy.
func (f StrategyFunc) Compute(c *Cell) (*statements.ItemValue, error) {
	return f(c)
}

// Subject is the item classification used as the last dispatch coordinate.
type Subject string

const (
	SubjectAny       Subject = "*"
	SubjectContainer Subject = "container"
	SubjectLedger    Subject = Subject(statements.ItemTypeLedger)
	SubjectMetric    Subject = Subject(statements.ItemTypeMetric)
	SubjectReference Subject = Subject(statements.ItemTypeReference)
	SubjectStats     Subject = Subject(statements.ItemTypeStats)
	SubjectTotals    Subject = "totals"
	// SubjectCarry covers actual-family cells of a comparison year.
	SubjectCarry Subject = "carry"
)

// SubjectOf classifies item for dispatch on column.
func SubjectOf(item *statements.Item, column statements.Column) Subject {
	if column.Type.ActualFamily() && column.Year != statements.YearCurrent && column.Year != "" {
		return SubjectCarry
	}
	if item.Totals {
		return SubjectTotals
	}
	if item.TypeConfig.Name == statements.ItemTypeNone {
		return SubjectContainer
	}
	return Subject(item.TypeConfig.Name)
}

// Key is a dispatch table entry. An empty Range or Kind matches any value.
type Key struct {
	Type    statements.ColumnType
	Range   statements.Range
	Kind    statements.ReportKind
	Subject Subject
}

func (k Key) String() string {
	rng, kind := string(k.Range), string(k.Kind)
	if rng == "" {
		rng = "*"
	}
	if kind == "" {
		kind = "*"
	}
	return fmt.Sprintf("%s/%s/%s/%s", k.Type, rng, kind, k.Subject)
}

// Registry maps dispatch keys to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[Key]Strategy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[Key]Strategy)}
}

// Register binds key to s, replacing an existing binding.
func (r *Registry) Register(key Key, s Strategy) {
	if key.Subject == "" {
		key.Subject = SubjectAny
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[key] = s
}

// Resolve selects the strategy for (item, column) on a report of kind. The
// exact key wins, then wildcard range, kind and subject in that order.
func (r *Registry) Resolve(kind statements.ReportKind, item *statements.Item, column statements.Column) (Strategy, bool) {
	if item == nil {
		return nil, false
	}
	subject := SubjectOf(item, column)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, subj := range []Subject{subject, SubjectAny} {
		for _, k := range []statements.ReportKind{kind, ""} {
			for _, rng := range []statements.Range{column.Range, ""} {
				if s, ok := r.strategies[Key{Type: column.Type, Range: rng, Kind: k, Subject: subj}]; ok {
					return s, true
				}
			}
		}
	}
	return nil, false
}

// Keys lists the registered keys in a stable order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry wires every built-in strategy.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	ledger := NewLedger()
	department := NewDepartmentLedger(ledger)

	for _, t := range []statements.ColumnType{statements.ColumnActual, statements.ColumnGrossActual} {
		r.Register(Key{Type: t, Subject: SubjectLedger}, ledger)
		r.Register(Key{Type: t, Kind: statements.KindDepartment, Subject: SubjectLedger}, department)
		r.Register(Key{Type: t, Subject: SubjectMetric}, Metric{})
		r.Register(Key{Type: t, Subject: SubjectReference}, Reference{})
		r.Register(Key{Type: t, Subject: SubjectStats}, Stats{})
		r.Register(Key{Type: t, Subject: SubjectTotals}, Total{})
		r.Register(Key{Type: t, Subject: SubjectCarry}, Carry{})
	}
	r.Register(Key{Type: statements.ColumnPercentage}, Percentage{})
	r.Register(Key{Type: statements.ColumnGrossPercentage}, Percentage{})
	r.Register(Key{Type: statements.ColumnVariance}, Variance{})

	r.Register(Key{Type: statements.ColumnBudgetActual, Subject: SubjectLedger}, BudgetActual{})
	r.Register(Key{Type: statements.ColumnBudgetActual, Subject: SubjectMetric}, BudgetActual{})
	r.Register(Key{Type: statements.ColumnBudgetActual, Subject: SubjectTotals}, BudgetTotal{})
	r.Register(Key{Type: statements.ColumnBudgetActual, Kind: statements.KindDepartment, Subject: SubjectLedger}, DepartmentBudget{})
	r.Register(Key{Type: statements.ColumnBudgetPercentage}, BudgetPercentage{})
	r.Register(Key{Type: statements.ColumnBudgetVariance}, BudgetVariance{})
	return r
}
