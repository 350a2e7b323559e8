package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-statements/jobs"
)

// JobsCLI wraps manual management helpers for statement jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues the statement task matching req. Year requests enqueue a
// full fiscal year, group requests a consolidation; anything else is a
// single period.
func (c *JobsCLI) Trigger(ctx context.Context, req EnqueueRequest) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch {
	case len(req.Sources) > 0:
		return c.client.EnqueueConsolidate(ctx, jobs.ConsolidatePayload{
			TargetReportID:  req.ReportID,
			SourceReportIDs: req.Sources,
			Month:           req.Month,
		})
	case req.Year > 0:
		return c.client.EnqueueRecomputeYear(ctx, jobs.RecomputeYearPayload{ReportID: req.ReportID, Year: req.Year, Force: req.Force})
	case req.ReportID > 0:
		return c.client.EnqueueRecompute(ctx, jobs.RecomputePayload{
			ReportID:   req.ReportID,
			PeriodType: req.PeriodType,
			Date:       req.Date,
			Force:      req.Force,
		})
	default:
		return nil, fmt.Errorf("jobs cli: report id required")
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Failed    int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Failed = info.Archived
	}
	return stats, nil
}

// ScheduledTask is the printable form of a pending scheduled task.
type ScheduledTask struct {
	ID        string
	Type      string
	NextRunAt time.Time
}

// ListScheduled returns scheduled tasks for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]ScheduledTask, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	infos, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return nil, err
	}
	out := make([]ScheduledTask, 0, len(infos))
	for _, info := range infos {
		out = append(out, ScheduledTask{ID: info.ID, Type: info.Type, NextRunAt: info.NextProcessAt})
	}
	return out, nil
}
