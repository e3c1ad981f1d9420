package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/toolcrib/toolcrib/internal/jobs"
)

const defaultIdempotencyTTL = 7 * 24 * time.Hour

// KeyPurger deletes idempotency keys older than a retention window.
type KeyPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// IdempotencyCleanupJob keeps the idempotency table bounded.
type IdempotencyCleanupJob struct {
	Store   KeyPurger
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle executes the asynq task.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := j.TTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	removed, err := j.Store.Purge(ctx, ttl)
	if err != nil {
		logger.Error("idempotency cleanup failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("idempotency keys purged", slog.Int64("removed", removed), slog.Duration("ttl", ttl))
	return tracker.End(nil)
}
