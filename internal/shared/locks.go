package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another process owns the lock.
var ErrLockHeld = errors.New("lock already held")

// LedgerRepairLockKey guards the status repair sweep.
func LedgerRepairLockKey() string {
	return "toolcrib:ledger:repair:lock"
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker provides best-effort distributed mutual exclusion on Redis.
type Locker struct {
	client *redis.Client
}

// NewLocker constructs a Locker.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes key for ttl and returns a release func.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("locker not initialised")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
