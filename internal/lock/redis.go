// Package lock provides the cross-instance posting guard used by the invoice
// engine. Correctness never depends on it: row locks in the store already
// serialize writers. The guard only keeps two instances from racing each
// other through the retry loop for the same invoice.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-engine/internal/config"
	"billing-engine/internal/core"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisGuard implements core.Guard with bsm/redislock.
type RedisGuard struct {
	locker  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	retries int
	logger  *logrus.Logger
}

var _ core.Guard = (*RedisGuard)(nil)

// NewRedisGuard connects to addr and verifies it with a ping.
func NewRedisGuard(ctx context.Context, addr string, ttl time.Duration, logger *logrus.Logger) (*RedisGuard, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect redis at %s: %w", addr, err)
	}
	return NewRedisGuardFromClient(rdb, ttl, logger), rdb, nil
}

func NewRedisGuardFromClient(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisGuard{
		locker:  redislock.New(rdb),
		ttl:     ttl,
		backoff: 50 * time.Millisecond,
		retries: 20,
		logger:  logger,
	}
}

// Acquire obtains "guard:<key>", retrying with linear backoff. A key that
// stays held past the retry budget yields core.ErrContention.
func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := "guard:" + key
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(g.backoff), g.retries),
	}
	lk, err := g.locker.Obtain(ctx, lockKey, g.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(g.logger, "lock", "Acquire", "could not obtain guard", lockKey, err)
		return nil, fmt.Errorf("%w: %s is held by another request", core.ErrContention, key)
	} else if err != nil {
		config.LogError(g.logger, "lock", "Acquire", "error obtaining guard", lockKey, err)
		return nil, fmt.Errorf("failed to obtain guard %s: %w", lockKey, err)
	}

	return func() {
		// Detached from ctx so a cancelled request still frees the key.
		if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(g.logger, "lock", "Release", "error releasing guard", lockKey, err)
		}
	}, nil
}
