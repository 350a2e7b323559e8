package values

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// Variance is the current year's actual minus the comparison year's actual
// over the same range. A variance column of the current year compares against
// the prior year.
type Variance struct{}

// Compute implements Strategy.
func (Variance) Compute(c *Cell) (*statements.ItemValue, error) {
	compare := c.Column.Year
	if compare == statements.YearCurrent || compare == "" {
		compare = statements.YearPrior
	}
	curShape := c.shape(statements.ColumnActual, c.Column.Range, statements.YearCurrent)
	cmpShape := c.shape(statements.ColumnActual, c.Column.Range, compare)
	if _, ok := c.Report.Column(curShape); !ok {
		return nil, fmt.Errorf("%w: no %s column", ErrUpstreamUnavailable, curShape)
	}
	if _, ok := c.Report.Column(cmpShape); !ok {
		return nil, fmt.Errorf("%w: no %s column", ErrUpstreamUnavailable, cmpShape)
	}
	cur, curOK := c.sibling(curShape)
	cmp, cmpOK := c.sibling(cmpShape)
	if !curOK && !cmpOK {
		return nil, nil
	}
	out := c.newValue(0, statements.ColumnVariance)
	if curOK {
		out.Value += cur.Value
		out.AccumulatedValue += cur.AccumulatedValue
	}
	if cmpOK {
		out.Value -= cmp.Value
		out.AccumulatedValue -= cmp.AccumulatedValue
	}
	return out, nil
}
