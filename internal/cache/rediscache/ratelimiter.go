package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter shared by every collector process
// pointed at the same Redis.
type RateLimiter struct {
	c      *redis.Client
	prefix string
}

func NewRateLimiter(o Options) *RateLimiter {
	return &RateLimiter{c: newClient(o), prefix: o.Prefix}
}

// Allow increments the window counter for key and, in the same MULTI, gives
// it a TTL if it has none. Returns whether the call fits in limit and the
// current count.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	key = rl.prefix + key
	var incr *redis.IntCmd
	_, err := rl.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}

