// Package ratelimit implements the gateway's request rate limiter. Redis,
// when configured, runs a sliding-window algorithm over a sorted set per
// key. An in-process token-bucket fallback keeps the gateway runnable
// with zero external services.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OmarEhab007/wiregate/internal/collab"
)

// Limiter satisfies collab.RateLimiter, consuming from Redis when
// configured and otherwise falling back to an in-process token bucket.
type Limiter struct {
	client   *redis.Client
	script   *redis.Script
	limit    int
	window   time.Duration
	fallback *bucketLimiter
}

// New builds a Limiter. redisURL may be empty, in which case only the
// in-process fallback is used. limit requests are allowed per window.
func New(ctx context.Context, redisURL string, limit int, window time.Duration) (*Limiter, error) {
	l := &Limiter{
		limit:    limit,
		window:   window,
		fallback: newBucketLimiter(limit, window),
		script:   redis.NewScript(slidingWindowScript),
	}

	if redisURL == "" {
		return l, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: ping redis: %w", err)
	}
	l.client = client
	return l, nil
}

// Close releases the Redis connection, if any.
func (l *Limiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

const slidingWindowScript = `
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
		redis.call('PEXPIRE', key, ttl)
		return 1
	else
		redis.call('PEXPIRE', key, ttl)
		return 0
	end
`

// Consume reports whether key may proceed under the configured
// limit/window, preferring Redis and falling back to the in-process
// bucket when Redis is unavailable or unconfigured.
func (l *Limiter) Consume(ctx context.Context, key string) (collab.RateLimitResult, error) {
	if l.client == nil {
		return l.fallback.consume(key), nil
	}

	now := time.Now()
	windowStart := now.Add(-l.window)

	result, err := l.script.Run(ctx, l.client, []string{"ratelimit:" + key},
		float64(windowStart.UnixMilli()),
		float64(now.UnixMilli()),
		l.limit,
		l.window.Milliseconds(),
	).Int()
	if err != nil {
		return l.fallback.consume(key), nil
	}

	if result == 1 {
		return collab.RateLimitResult{Allowed: true}, nil
	}
	return collab.RateLimitResult{Allowed: false, RetryAfterMs: l.window.Milliseconds()}, nil
}

// bucketLimiter is a simple mutex-guarded token bucket keyed by caller id,
// used when Redis is absent.
type bucketLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	limit   int
	window  time.Duration
}

type bucketState struct {
	tokens   int
	resetsAt time.Time
}

func newBucketLimiter(limit int, window time.Duration) *bucketLimiter {
	return &bucketLimiter{
		buckets: make(map[string]*bucketState),
		limit:   limit,
		window:  window,
	}
}

func (b *bucketLimiter) consume(key string) collab.RateLimitResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, ok := b.buckets[key]
	if !ok || now.After(state.resetsAt) {
		state = &bucketState{tokens: b.limit, resetsAt: now.Add(b.window)}
		b.buckets[key] = state
	}

	if state.tokens <= 0 {
		return collab.RateLimitResult{Allowed: false, RetryAfterMs: state.resetsAt.Sub(now).Milliseconds()}
	}
	state.tokens--
	return collab.RateLimitResult{Allowed: true}
}
