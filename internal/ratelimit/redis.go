// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultRedisPrefix namespaces counter keys.
const DefaultRedisPrefix = "collabdoc:rl"

// RedisLimiter keeps counters in Redis so every API replica shares them.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLimiter creates a RedisLimiter. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// NewRedisClient parses a redis:// or rediss:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis URL").Wrap(err)
	}
	return redis.NewClient(opts), nil
}

// Allow increments the counter for key. The counter is created with the
// window as its expiry, and INCR preserves that TTL, so the window is fixed
// from the first request. A counter found without an expiry gets the window
// re-armed so it cannot lock a client out forever.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, win time.Duration) (Decision, error) {
	if l.client == nil {
		return Decision{}, oops.Code("RATE_LIMIT_BACKEND_FAILED").Errorf("redis client is nil")
	}
	storeKey := l.prefix + ":" + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, storeKey, 0, win)
		incr = pipe.Incr(ctx, storeKey)
		pttl = pipe.PTTL(ctx, storeKey)
		return nil
	})
	if err != nil {
		return Decision{}, oops.Code("RATE_LIMIT_BACKEND_FAILED").
			With("operation", "increment counter").
			With("key", key).
			Wrap(err)
	}

	ttl := pttl.Val()
	if ttl == -1 {
		if err := l.client.PExpire(ctx, storeKey, win).Err(); err != nil {
			return Decision{}, oops.Code("RATE_LIMIT_BACKEND_FAILED").
				With("operation", "re-arm counter expiry").
				With("key", key).
				Wrap(err)
		}
		ttl = win
	}

	count := incr.Val()
	if count <= int64(limit) {
		return Decision{Allowed: true, Remaining: remaining(limit, count)}, nil
	}

	retry := ttl
	if retry <= 0 {
		retry = win
	}
	return Decision{RetryAfter: retry}, nil
}

var _ Limiter = (*RedisLimiter)(nil)
