package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

type stubStatements struct {
	requests    []recompute.Request
	years       []recompute.YearRequest
	groups      []recompute.GroupRequest
	ranges      []recompute.RangeRequest
	invalidated []recompute.Request
	grid        *statements.ReportData
	err         error
}

func (s *stubStatements) Recompute(ctx context.Context, req recompute.Request) (*recompute.Run, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &recompute.Run{ID: "7:monthly:2024-03-01", Data: &statements.ReportData{ItemValues: make([]statements.ItemValue, 3)}}, nil
}

func (s *stubStatements) RecomputeYear(ctx context.Context, req recompute.YearRequest) ([]*recompute.Run, error) {
	s.years = append(s.years, req)
	return []*recompute.Run{{ID: "jan", UpToDate: true}, {ID: "feb"}}, s.err
}

func (s *stubStatements) Consolidate(ctx context.Context, req recompute.GroupRequest) (*recompute.Run, error) {
	s.groups = append(s.groups, req)
	return &recompute.Run{ID: "group"}, s.err
}

func (s *stubStatements) Grid(ctx context.Context, req recompute.Request) (*statements.ReportData, error) {
	s.requests = append(s.requests, req)
	return s.grid, s.err
}

func (s *stubStatements) Rollup(ctx context.Context, req recompute.RangeRequest) (*statements.ReportData, error) {
	s.ranges = append(s.ranges, req)
	return s.grid, s.err
}

func (s *stubStatements) Invalidate(ctx context.Context, req recompute.Request) error {
	s.invalidated = append(s.invalidated, req)
	return s.err
}

type stubQueue struct {
	triggered []EnqueueRequest
	stats     QueueStats
	scheduled []ScheduledTask
}

func (q *stubQueue) Trigger(ctx context.Context, req EnqueueRequest) (*asynq.TaskInfo, error) {
	q.triggered = append(q.triggered, req)
	return &asynq.TaskInfo{ID: "task-1", Type: "statements:recompute", Queue: "default"}, nil
}

func (q *stubQueue) InspectQueue(ctx context.Context) (QueueStats, error) {
	return q.stats, nil
}

func (q *stubQueue) ListScheduled(ctx context.Context, size int) ([]ScheduledTask, error) {
	return q.scheduled, nil
}

func execute(t *testing.T, env *Env, args ...string) (string, error) {
	t.Helper()
	stdout := new(bytes.Buffer)
	env.Stdout = stdout
	env.Stderr = new(bytes.Buffer)
	if env.Now == nil {
		env.Now = func() time.Time { return time.Date(2024, time.April, 15, 8, 0, 0, 0, time.UTC) }
	}
	root := NewRootCmd(env)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func serviceEnv(svc *stubStatements) *Env {
	return &Env{Statements: func(ctx context.Context) (Statements, error) { return svc, nil }}
}

func TestRecomputeCommand(t *testing.T) {
	svc := &stubStatements{}
	out, err := execute(t, serviceEnv(svc), "recompute", "--report", "7", "--date", "2024-03-05", "--force")
	require.NoError(t, err)
	require.Len(t, svc.requests, 1)
	assert.Equal(t, recompute.Request{
		ReportID:   7,
		PeriodType: statements.PeriodMonthly,
		Date:       time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
		Force:      true,
	}, svc.requests[0])
	assert.Contains(t, out, "computed 3 cells")
}

func TestRecomputeCommandRequiresReport(t *testing.T) {
	_, err := execute(t, serviceEnv(&stubStatements{}), "recompute")
	require.Error(t, err)

	_, err = execute(t, serviceEnv(&stubStatements{}), "recompute", "--report", "7", "--date", "05/03/2024")
	require.Error(t, err)
}

func TestRecomputeYearDefaultsToCurrentYear(t *testing.T) {
	svc := &stubStatements{}
	out, err := execute(t, serviceEnv(svc), "recompute-year", "--report", "7")
	require.NoError(t, err)
	require.Len(t, svc.years, 1)
	assert.Equal(t, 2024, svc.years[0].Year)
	assert.Contains(t, out, "jan up to date")
}

func TestConsolidateCommandDefaultsToPreviousMonth(t *testing.T) {
	svc := &stubStatements{}
	_, err := execute(t, serviceEnv(svc), "consolidate", "--target", "9", "--source", "1,2")
	require.NoError(t, err)
	require.Len(t, svc.groups, 1)
	assert.Equal(t, []int64{1, 2}, svc.groups[0].SourceReportIDs)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), svc.groups[0].Month)
}

func TestShowCommandFormatsNumbers(t *testing.T) {
	svc := &stubStatements{grid: &statements.ReportData{
		ReportID:    7,
		PeriodType:  statements.PeriodMonthly,
		StartDate:   time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		UpdateState: statements.StateFinished,
		ItemValues: []statements.ItemValue{
			{ItemID: 72, ColumnID: 1, Value: 1234567.5, AccumulatedValue: 2000000},
			{ItemID: 71, ColumnID: 1, Value: 10},
		},
	}}
	out, err := execute(t, serviceEnv(svc), "show", "--report", "7", "--date", "2024-03-05")
	require.NoError(t, err)
	assert.Contains(t, out, "1,234,567.50")
	assert.Contains(t, out, "2,000,000.00")
	assert.Less(t, strings.Index(out, "71"), strings.Index(out, "72"))
}

func TestShowCommandRange(t *testing.T) {
	svc := &stubStatements{grid: &statements.ReportData{ReportID: 7, PeriodType: statements.PeriodRange}}
	_, err := execute(t, serviceEnv(svc), "show", "--report", "7", "--start", "2024-01-01", "--end", "2024-03-31", "--json")
	require.NoError(t, err)
	require.Len(t, svc.ranges, 1)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), svc.ranges[0].Start)

	_, err = execute(t, serviceEnv(svc), "show", "--report", "7", "--start", "2024-01-01")
	require.Error(t, err)
}

func TestInvalidateCommandPropagatesErrors(t *testing.T) {
	svc := &stubStatements{err: statements.ErrInvalidTransition}
	_, err := execute(t, serviceEnv(svc), "invalidate", "--report", "7", "--date", "2024-03-05")
	assert.ErrorIs(t, err, statements.ErrInvalidTransition)
}

func TestEnqueueCommandDefaultsDate(t *testing.T) {
	queue := &stubQueue{}
	env := &Env{Queue: func(ctx context.Context) (Queue, error) { return queue, nil }}
	out, err := execute(t, env, "enqueue", "--report", "7")
	require.NoError(t, err)
	require.Len(t, queue.triggered, 1)
	assert.Equal(t, "2024-04-15", queue.triggered[0].Date)
	assert.Contains(t, out, "enqueued statements:recompute task-1")

	_, err = execute(t, env, "enqueue", "--report", "9", "--source", "1", "--source", "2")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, queue.triggered[1].Sources)
	assert.Empty(t, queue.triggered[1].Date)
}

func TestQueueCommand(t *testing.T) {
	queue := &stubQueue{
		stats:     QueueStats{Queue: "default", Pending: 2, Retry: 1},
		scheduled: []ScheduledTask{{ID: "abc", Type: "statements:sweep", NextRunAt: time.Date(2024, time.April, 15, 9, 0, 0, 0, time.UTC)}},
	}
	out, err := execute(t, &Env{Queue: func(ctx context.Context) (Queue, error) { return queue, nil }}, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "pending=2")
	assert.Contains(t, out, "statements:sweep")
}

func TestMigrateCommand(t *testing.T) {
	called := false
	out, err := execute(t, &Env{Migrate: func(ctx context.Context) error { called = true; return nil }}, "migrate")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, out, "schema applied")

	_, err = execute(t, &Env{}, "migrate")
	assert.ErrorIs(t, err, errNotConfigured)

	boom := errors.New("boom")
	_, err = execute(t, &Env{Migrate: func(ctx context.Context) error { return boom }}, "migrate")
	assert.ErrorIs(t, err, boom)
}

func TestJobsCLIRequiresClient(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), EnqueueRequest{ReportID: 1})
	require.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)
}
