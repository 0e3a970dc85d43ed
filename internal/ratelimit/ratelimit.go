// Package ratelimit bounds sensitive-endpoint call frequency per
// (client address, target email) pair with a redis fixed window.
// Window expiry rides on the key TTL, so no sweeper is needed and the
// state is shared across instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed    bool
	RetryAfter time.Time
}

// Limiter allows at most Max requests per key per Window. The INCR is
// what makes concurrent requests see a consistent count.
type Limiter struct {
	rdb    *redis.Client
	window time.Duration
	max    int64
}

func New(rdb *redis.Client, window time.Duration, max int) *Limiter {
	return &Limiter{rdb: rdb, window: window, max: int64(max)}
}

func key(ip, email string) string {
	return fmt.Sprintf("rl:%s:%s", ip, email)
}

func (l *Limiter) Check(ctx context.Context, ip, email string) (Result, error) {
	k := key(ip, email)

	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return Result{}, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return Result{}, err
		}
	}
	if count <= l.max {
		return Result{Allowed: true}, nil
	}

	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return Result{}, err
	}
	if ttl < 0 {
		// Key lost its TTL (e.g. the Expire above failed on a prior
		// request). Reset the window rather than lock the pair out.
		ttl = l.window
		_ = l.rdb.Expire(ctx, k, l.window).Err()
	}
	return Result{Allowed: false, RetryAfter: time.Now().Add(ttl)}, nil
}
