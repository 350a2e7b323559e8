package values

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// Metric reads an external metric for the column's window. Metric cells carry
// variance semantics so comparisons against prior periods are meaningful.
type Metric struct{}

// Compute implements Strategy.
func (Metric) Compute(c *Cell) (*statements.ItemValue, error) {
	code := strings.TrimSpace(c.Item.TypeConfig.MetricCode)
	if code == "" {
		return nil, fmt.Errorf("%w: metric item %s has no metric code", ErrInvalidConfig, c.Item.Identifier)
	}
	if c.Snapshot.Metrics == nil {
		return nil, fmt.Errorf("%w: metrics snapshot missing", ErrUpstreamUnavailable)
	}
	start, end := c.window(c.Column.Range)
	v, ok := c.Snapshot.Metrics.Metric(code, start, end)
	if !ok {
		if out, ok := c.fallbackToCurrent(statements.ColumnVariance); ok {
			return out, nil
		}
		return nil, fmt.Errorf("%w: metric %s", ErrUpstreamUnavailable, code)
	}
	out := c.newValue(v*c.signFactor(), statements.ColumnVariance)
	out.AccumulatedValue = c.accumulated(out.Value)
	return out, nil
}
