package values

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// Carry copies an actual-family cell verbatim from the comparison period: the
// prior year for "prior" columns, the previous period for "previous_period".
type Carry struct{}

// Compute implements Strategy.
func (Carry) Compute(c *Cell) (*statements.ItemValue, error) {
	var source *statements.ReportData
	switch c.Column.Year {
	case statements.YearPrior:
		source = c.Snapshot.PriorYear
	case statements.YearPreviousPeriod:
		source = c.Snapshot.PreviousPeriod
	}
	if source == nil {
		return nil, fmt.Errorf("%w: no %s period", ErrUpstreamUnavailable, c.Column.Year)
	}
	col, ok := c.Report.Column(c.shape(c.Column.Type, c.Column.Range, statements.YearCurrent))
	if !ok {
		return nil, fmt.Errorf("%w: no current year %s/%s column", ErrUpstreamUnavailable, c.Column.Type, c.Column.Range)
	}
	src, ok := source.Cell(c.Item.ID, col.ID)
	if !ok {
		if c.Item.TypeConfig.Name == statements.ItemTypeNone && !c.Item.Totals {
			return nil, nil
		}
		return c.newValue(0, statements.ColumnActual), nil
	}
	out := src.Clone()
	out.ColumnID = c.Column.ID
	return &out, nil
}
