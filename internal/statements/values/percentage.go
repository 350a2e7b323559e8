package values

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/formula"
)

// Percentage evaluates the item's percentage formula over the matching
// actual-family column. Each cross-report operand is read from the dependency
// report and kept in DependencyOperands, the denominator's also in
// DependencyAccumulatedValue. Recompute passes reuse the stored operands
// because the dependency snapshot is not available to them.
type Percentage struct{}

// Compute implements Strategy.
func (Percentage) Compute(c *Cell) (*statements.ItemValue, error) {
	expr, ok := c.Item.Expression(c.Column.Type)
	if !ok {
		return nil, nil
	}
	if err := expr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	base := c.shape(c.Column.Type.Base(), c.Column.Range, c.Column.Year)
	if _, ok := c.Report.Column(base); !ok {
		return nil, fmt.Errorf("%w: no %s column", ErrUpstreamUnavailable, base)
	}

	var stored *statements.ItemValue
	if c.Recompute {
		stored, _ = c.Grid.Get(c.Item.ID, c.Column.ID)
	}
	local := c.lookup(base, cellValue)
	dependency := 0.0
	var operands []statements.DependencyOperand
	lookup := func(identifier string) (float64, bool) {
		if !formula.IsCrossReport(identifier) {
			return local(identifier)
		}
		var v float64
		if c.Recompute {
			if stored == nil {
				return 0, false
			}
			v = stored.DependencyAccumulatedValue
			if len(stored.DependencyOperands) > 0 {
				var found bool
				if v, found = stored.DependencyOperand(identifier); !found {
					return 0, false
				}
			}
		} else {
			cell, ok := c.crossCell(identifier, base)
			if !ok {
				return 0, false
			}
			v = cell.Value
		}
		dependency = v
		operands = statements.SetDependencyOperand(operands, identifier, v)
		return v, true
	}

	value, err := formula.Evaluate(expr, lookup)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	out := c.newValue(value, statements.ColumnPercentage)
	out.DependencyAccumulatedValue = dependency
	out.DependencyOperands = operands
	return out, nil
}
