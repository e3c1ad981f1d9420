package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/toolcrib/toolcrib/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})
	return &JobsCLI{client: client, inspector: inspector}, nil
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

// BuildTask maps a job name to its task with the default payload.
func BuildTask(name string, dryRun bool) (*asynq.Task, error) {
	switch name {
	case jobs.TaskLedgerRepair, "ledger-repair":
		return jobs.NewLedgerRepairTask(jobs.LedgerRepairPayload{DryRun: dryRun})
	case jobs.TaskIdempotencyCleanup, "idempotency-cleanup":
		return jobs.NewIdempotencyCleanupTask(), nil
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, dryRun bool) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := BuildTask(name, dryRun)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
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
	}
	return stats, nil
}
