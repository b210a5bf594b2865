package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/floroz/winbid/internal/ratelimit"
)

// RedisLimiter is a fixed-window counter shared by every instance.
// The first hit in a window sets the key expiry, later hits only increment.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

var _ ratelimit.Limiter = (*RedisLimiter)(nil)

func (l *RedisLimiter) Check(ctx context.Context, key string, max int, window time.Duration) (ratelimit.Result, error) {
	if max <= 0 || window <= 0 {
		return ratelimit.Result{}, errors.New("rate limit max and window must be positive")
	}
	k := rateLimitPrefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("rate limit increment failed: %w", err)
	}
	if count == 1 {
		if err := l.client.PExpire(ctx, k, window).Err(); err != nil {
			return ratelimit.Result{}, fmt.Errorf("rate limit expire failed: %w", err)
		}
	}

	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("rate limit ttl failed: %w", err)
	}
	// -1: a previous first hit died before PEXPIRE ran
	if ttl < 0 {
		ttl = window
		if err := l.client.PExpire(ctx, k, window).Err(); err != nil {
			return ratelimit.Result{}, fmt.Errorf("rate limit expire failed: %w", err)
		}
	}

	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Result{
		Allowed:   count <= int64(max),
		Remaining: remaining,
		ResetAt:   l.now().Add(ttl),
	}, nil
}
