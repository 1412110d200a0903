// Package ratelimit provides distributed rate limiting for the admin HTTP
// surface using Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crewbill/keysvc/pkg/logger"
)

// Lua script for an atomic fixed-window counter. The window key is created
// with its expiry in the same call, so concurrent callers cannot leak a
// counter without a TTL.
const fixedWindowLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local count = redis.call('INCR', key)
if count == 1 then
	redis.call('PEXPIRE', key, window_ms)
end

if count > limit then
	return 0
end
return 1
`

// RedisRateLimiter enforces a per-key request limit inside a fixed window,
// shared across all service instances.
type RedisRateLimiter struct {
	client redis.UniversalClient
	script *redis.Script
	limit  int64
	window time.Duration
	prefix string
	logger logger.Logger
}

// NewRedisRateLimiter creates a limiter allowing limit requests per window.
func NewRedisRateLimiter(client redis.UniversalClient, limit int64, window time.Duration, log logger.Logger) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisRateLimiter{
		client: client,
		script: redis.NewScript(fixedWindowLuaScript),
		limit:  limit,
		window: window,
		prefix: "keysvc:ratelimit:",
		logger: log.WithComponent("rate_limiter"),
	}
}

// Allow reports whether the caller identified by key may proceed. Redis
// failures fail open: rate limiting protects against abuse, it must not take
// the admin surface down with the limiter store.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	res, err := l.script.Run(ctx, l.client,
		[]string{l.prefix + key},
		l.limit, l.window.Milliseconds(),
	).Int64()
	if err != nil {
		l.logger.Warn(ctx, "rate limit check failed, allowing request",
			logger.String("key", key), logger.Err(err))
		return true
	}
	return res == 1
}

// Usage returns the current window's consumption for the key.
func (l *RedisRateLimiter) Usage(ctx context.Context, key string) (used, limit int64, err error) {
	count, err := l.client.Get(ctx, l.prefix+key).Int64()
	if err == redis.Nil {
		return 0, l.limit, nil
	}
	if err != nil {
		return 0, l.limit, fmt.Errorf("rate limit usage lookup: %w", err)
	}
	return count, l.limit, nil
}
