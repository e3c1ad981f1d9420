package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxIdempotencyKeyLen bounds client supplied Idempotency-Key values.
const MaxIdempotencyKeyLen = 128

// ErrIdempotencyConflict reports a key that was already claimed in its scope.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore records claimed request keys per scope in idempotency_keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// NormalizeIdempotencyKey trims the key and rejects empty or oversized values.
func NormalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: idempotency key required", ErrValidation)
	}
	if len(key) > MaxIdempotencyKeyLen {
		return "", fmt.Errorf("%w: idempotency key longer than %d bytes", ErrValidation, MaxIdempotencyKeyLen)
	}
	return key, nil
}

// Claim reserves key within scope. A key claimed earlier yields
// ErrIdempotencyConflict.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) error {
	if s == nil || s.pool == nil {
		return errors.New("idempotency store not initialised")
	}
	if scope == "" {
		return errors.New("idempotency scope required")
	}
	key, err := NormalizeIdempotencyKey(key)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (scope, key) VALUES ($1, $2)
ON CONFLICT (scope, key) DO NOTHING`, scope, key)
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release drops a claim so a failed request can be retried with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE scope=$1 AND key=$2`, scope, strings.TrimSpace(key))
	return err
}

// Purge deletes claims older than retention, measured on the database clock.
func (s *IdempotencyStore) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	if retention <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", ErrValidation)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys
WHERE created_at < NOW() - make_interval(secs => $1)`, retention.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
