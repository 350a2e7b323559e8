package values

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/formula"
)

// Stats evaluates the item's formula over the other items of the same column.
type Stats struct{}

// Compute implements Strategy.
func (Stats) Compute(c *Cell) (*statements.ItemValue, error) {
	expr, ok := c.Item.Expression(c.Column.Type)
	if !ok && c.Column.Type == statements.ColumnGrossActual {
		expr, ok = c.Item.Expression(statements.ColumnActual)
	}
	if !ok {
		return nil, fmt.Errorf("%w: stats item %s has no %s formula", ErrInvalidConfig, c.Item.Identifier, c.Column.Type)
	}
	shape := c.Column.Shape()
	value, err := formula.Evaluate(expr, c.lookup(shape, cellValue))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	accumulated, err := formula.Evaluate(expr, c.lookup(shape, cellAccumulated))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	bucket := statements.ColumnActual
	if expr.IsPercent() {
		bucket = statements.ColumnPercentage
	}
	out := c.newValue(value, bucket)
	out.AccumulatedValue = accumulated
	return out, nil
}
