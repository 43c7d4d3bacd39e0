package rate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces counters in Redis.
const DefaultKeyPrefix = "ratelimit:"

// Config holds rate limiter tuning parameters.
type Config struct {
	KeyPrefix string
	// OperationTimeout bounds the Redis round trip before falling back to the local counter.
	OperationTimeout time.Duration
	Logger           *slog.Logger
}

// Result is the outcome of a single Consume call.
type Result struct {
	Allowed      bool
	Limit        int
	Remaining    int
	ResetSeconds int
	// Degraded is true when the decision came from the local fallback counter.
	Degraded bool
}

// Limiter is a fixed-window counter keyed by (bucket, identity), stored in Redis
// with an in-process fallback.
type Limiter struct {
	redis    redis.UniversalClient
	config   Config
	fallback *LocalCounter
}

// fixedWindowScript increments the window counter and returns {count, pttl}.
// A key that somehow lost its TTL is re-armed so it cannot live forever.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// New creates a rate [Limiter] backed by the given Redis client. fallback absorbs
// traffic while Redis is unreachable; it must not be nil.
func New(redisClient redis.UniversalClient, cfg Config, fallback *LocalCounter) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Limiter{
		redis:    redisClient,
		config:   cfg,
		fallback: fallback,
	}
}

// Consume counts one hit against key and reports whether it fits in capacity for the
// current window. Redis errors fail open to the local counter.
func (l *Limiter) Consume(ctx context.Context, key string, capacity int, window time.Duration) Result {
	if capacity <= 0 || window <= 0 {
		return Result{Allowed: true, Limit: capacity}
	}

	count, ttl, err := l.incrementWithTTL(ctx, l.config.KeyPrefix+key, window)
	if err != nil {
		l.config.Logger.Warn("rate: redis unavailable, using local counter", "key", key, "error", err)
		res := l.fallback.Consume(key, capacity, window)
		res.Degraded = true
		return res
	}

	return decide(count, capacity, ttl)
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if l.config.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.OperationTimeout)
		defer cancel()
	}

	vals, err := fixedWindowScript.Run(ctx, l.redis, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, vals)
	}
	return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}

func decide(count int64, capacity int, ttl time.Duration) Result {
	remaining := int64(capacity) - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:      count <= int64(capacity),
		Limit:        capacity,
		Remaining:    int(remaining),
		ResetSeconds: ceilSeconds(ttl),
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
