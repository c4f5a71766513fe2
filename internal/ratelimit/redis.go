package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindow keeps fixed-window counters in Redis so replicas share
// one budget per identifier.
type RedisFixedWindow struct {
	Client *redis.Client
	Prefix string
}

// Allow increments the counter for key and reports the decision. The first
// hit of a window (or a counter that lost its TTL) arms the expiry.
func (l RedisFixedWindow) Allow(ctx context.Context, key string, limit int, windowLen time.Duration) (Result, error) {
	if limit < 1 {
		return Result{ResetInSeconds: ceilSeconds(windowLen)}, nil
	}
	if l.Client == nil {
		return Result{}, fmt.Errorf("ratelimit: redis client not configured")
	}

	redisKey := l.Prefix + key
	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("ratelimit: count %s: %w", key, err)
	}

	count := int(incr.Val())
	remainingTTL := ttl.Val()
	if count == 1 || remainingTTL < 0 {
		if err := l.Client.PExpire(ctx, redisKey, windowLen).Err(); err != nil {
			return Result{}, fmt.Errorf("ratelimit: arm window %s: %w", key, err)
		}
		remainingTTL = windowLen
	}

	reset := ceilSeconds(remainingTTL)
	if count > limit {
		return Result{Allowed: false, Remaining: 0, ResetInSeconds: reset}, nil
	}
	return Result{Allowed: true, Remaining: limit - count, ResetInSeconds: reset}, nil
}
