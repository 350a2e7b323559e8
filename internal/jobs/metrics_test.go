package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/engine"
)

var _ engine.Observer = (*Metrics)(nil)

func TestTrackerRecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	if err := m.Track("statements:recompute").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	boom := errors.New("boom")
	if err := m.Track("statements:recompute").End(boom); !errors.Is(err, boom) {
		t.Fatalf("expected error passthrough, got %v", err)
	}

	if got := testutil.ToFloat64(m.runs.WithLabelValues("statements:recompute", "success")); got != 1 {
		t.Fatalf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("statements:recompute")); got != 1 {
		t.Fatalf("failures = %v", got)
	}
}

func TestObserveCell(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveCell(statements.KindBalanceSheet, engine.OutcomeComputed)
	m.ObserveCell(statements.KindBalanceSheet, engine.OutcomeComputed)
	m.ObserveCell("", engine.OutcomeUpstream)
	m.ObservePeriod(true)

	if got := testutil.ToFloat64(m.cells.WithLabelValues("balance_sheet", "computed")); got != 2 {
		t.Fatalf("computed cells = %v", got)
	}
	if got := testutil.ToFloat64(m.cells.WithLabelValues("standard", "upstream_unavailable")); got != 1 {
		t.Fatalf("upstream cells = %v", got)
	}
	if got := testutil.ToFloat64(m.periods.WithLabelValues("up_to_date")); got != 1 {
		t.Fatalf("up to date periods = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCell(statements.KindStandard, engine.OutcomeFailed)
	m.ObservePeriod(false)
	if err := m.Track("x").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
