package values

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/formula"
)

// Reference copies a cell of an item in a dependency report. An unresolvable
// target yields a zero cell so the grid stays complete.
type Reference struct{}

// Compute implements Strategy.
func (Reference) Compute(c *Cell) (*statements.ItemValue, error) {
	target := c.Item.TypeConfig.Target
	if _, _, ok := formula.SplitCrossReport(target); !ok {
		return nil, fmt.Errorf("%w: reference target %q", ErrInvalidConfig, target)
	}
	rng := c.Column.Range
	if c.Item.TypeConfig.SrcColumnRange != "" {
		rng = c.Item.TypeConfig.SrcColumnRange
	}
	out := c.newValue(0, statements.ColumnActual)
	src, ok := c.crossCell(target, c.shape(c.Column.Type, rng, c.Column.Year))
	if !ok {
		return out, nil
	}
	out.Value = src.Value
	out.AccumulatedValue = src.AccumulatedValue
	out.DependencyAccumulatedValue = src.AccumulatedValue
	return out, nil
}
