package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRepair re-derives tool statuses and reports ledger drift.
	TaskLedgerRepair = "tools:ledger_repair"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// LedgerRepairPayload configures a repair sweep.
type LedgerRepairPayload struct {
	DryRun    bool `json:"dry_run"`
	BatchSize int  `json:"batch_size,omitempty"`
}

// NewLedgerRepairTask constructs an Asynq task for the ledger repair sweep.
func NewLedgerRepairTask(payload LedgerRepairPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRepair, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task. It carries no payload.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}
