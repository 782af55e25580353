package offline

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "pos:sync:lock:"

// Locker serializes twin submissions of one idempotency key across nodes. It is
// best effort: the unique index on sales.client_uuid stays the final guard.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewLocker builds a Locker. A nil client disables locking.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{
		client: redislock.New(client),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	}
}

// ErrLockHeld reports a key held by another request after retries.
var ErrLockHeld = errors.New("offline: submission lock held")

// Acquire obtains the lock for key. The returned release func is always safe to call.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if l == nil {
		return noop, nil
	}
	lock, err := l.client.Obtain(ctx, lockKeyPrefix+key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return noop, ErrLockHeld
	}
	if err != nil {
		return noop, err
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}
