package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/toolcrib/toolcrib/internal/jobs"
	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
)

// LedgerRepairer runs a status repair sweep.
type LedgerRepairer interface {
	RepairStatuses(ctx context.Context, opts tools.RepairOptions) (tools.RepairReport, error)
}

// Locker provides cross-process mutual exclusion.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// LedgerRepairJob sweeps every tool, rewriting drifted statuses and counting
// overallocated ledgers. Only one sweep runs at a time across workers.
type LedgerRepairJob struct {
	Repairer LedgerRepairer
	Locker   Locker
	LockTTL  time.Duration
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewLedgerRepairJob initialises the repair handler.
func NewLedgerRepairJob(repairer LedgerRepairer, locker Locker, lockTTL time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerRepairJob {
	return &LedgerRepairJob{Repairer: repairer, Locker: locker, LockTTL: lockTTL, Logger: logger, Metrics: metrics}
}

// Handle executes the asynq task.
func (j *LedgerRepairJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerRepairPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload)
	if errors.Is(err, shared.ErrLockHeld) {
		return nil
	}
	return err
}

// Run performs one sweep under the repair lock. Drift is reported through
// metrics and logs; it is not an error for the job itself.
func (j *LedgerRepairJob) Run(ctx context.Context, payload LedgerRepairPayload) (tools.RepairReport, error) {
	if j == nil || j.Repairer == nil {
		return tools.RepairReport{}, errors.New("ledger repair: handler not configured")
	}
	logger := j.logger().With(slog.Bool("dry_run", payload.DryRun))

	if j.Locker != nil {
		release, err := j.Locker.Acquire(ctx, shared.LedgerRepairLockKey(), j.lockTTL())
		if err != nil {
			if errors.Is(err, shared.ErrLockHeld) {
				logger.Info("ledger repair already running, skipping")
			}
			return tools.RepairReport{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("ledger repair release lock", slog.Any("error", err))
			}
		}()
	}

	tracker := j.Metrics.Track(TaskLedgerRepair)
	start := time.Now()
	logger.Info("starting ledger repair")

	report, err := j.Repairer.RepairStatuses(ctx, tools.RepairOptions{DryRun: payload.DryRun, BatchSize: payload.BatchSize})
	if err != nil {
		logger.Error("ledger repair failed", slog.Any("error", err))
		return report, tracker.End(err)
	}

	var mismatched, overallocated int
	for _, d := range report.Drifts {
		if d.StatusMismatch {
			mismatched++
		}
		if d.Overallocated {
			overallocated++
			logger.Warn("tool ledger overallocated",
				slog.Int64("tool_id", d.ToolID),
				slog.Int("quantity", d.Quantity),
				slog.Int("issued_qty", d.IssuedQty),
				slog.Int("service_quantity", d.ServiceQuantity),
			)
		}
	}
	j.Metrics.AddDrift("status", mismatched)
	j.Metrics.AddDrift("allocation", overallocated)

	logger.Info("completed ledger repair",
		slog.Int("checked", report.Checked),
		slog.Int("status_mismatches", mismatched),
		slog.Int("overallocated", overallocated),
		slog.Int("corrected", report.Corrected()),
		slog.Duration("duration", time.Since(start)),
	)
	return report, tracker.End(nil)
}

func (j *LedgerRepairJob) lockTTL() time.Duration {
	if j.LockTTL <= 0 {
		return 10 * time.Minute
	}
	return j.LockTTL
}

func (j *LedgerRepairJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
