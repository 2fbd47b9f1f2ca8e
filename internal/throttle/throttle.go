// Package throttle limits login attempts per client before any account is
// looked up. It complements the per-account lockout.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether another attempt for key is allowed. When it is
// not, retryAfter says how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RedisLimiter is a fixed-window counter shared by every replica.
type RedisLimiter struct {
	client      redis.Cmdable
	maxAttempts int64
	window      time.Duration
	prefix      string
}

// NewRedisLimiter allows maxAttempts per window per key.
func NewRedisLimiter(client redis.Cmdable, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		maxAttempts: int64(maxAttempts),
		window:      window,
		prefix:      "auth:login_throttle:",
	}
}

// Allow increments the window counter for key. Only commands available on
// every Redis version are used: the first attempt of a window gets its
// expiry from a plain EXPIRE.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("throttle incr %s: %w", k, err)
	}

	allowed, retryAfter, expire := windowState(incr.Val(), pttl.Val(), l.maxAttempts, l.window)
	if expire {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("throttle expire %s: %w", k, err)
		}
	}
	return allowed, retryAfter, nil
}

// windowState reads a counter and its remaining TTL right after INCR. A
// negative ttl means the key has no expiry yet, so the window starts now.
func windowState(count int64, ttl time.Duration, maxAttempts int64, window time.Duration) (allowed bool, retryAfter time.Duration, expire bool) {
	expire = ttl < 0
	if count <= maxAttempts {
		return true, 0, expire
	}
	if ttl <= 0 {
		ttl = window
	}
	return false, ttl, expire
}

// MemoryLimiter is a per-process token bucket per key. It is used when Redis
// is not configured.
type MemoryLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*visitor
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastPrune time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows bursts of maxAttempts, refilled evenly over window.
func NewMemoryLimiter(maxAttempts int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(maxAttempts)),
		burst:    maxAttempts,
		ttl:      window,
		now:      time.Now,
	}
}

// Allow takes a token for key if one is available.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	v, ok := l.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// prune drops keys idle for longer than ttl, at most once per ttl.
func (l *MemoryLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < l.ttl {
		return
	}
	l.lastPrune = now
	for key, v := range l.limiters {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.limiters, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
