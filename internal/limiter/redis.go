package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// luaScript implements the fixed window atomically
// KEYS[1] = rate limit key
// ARGV[1] = limit
// ARGV[2] = window length (milliseconds)
// Returns: [allowed (1/0), count, ttl_ms]
//
// Expiry of the key is the window reset, so a missing key means a fresh window.
const luaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = tonumber(redis.call("GET", key))
if not count then
	redis.call("SET", key, 1, "PX", window)
	return {1, 1, window}
end

local ttl = redis.call("PTTL", key)
if ttl < 0 then
	redis.call("PEXPIRE", key, window)
	ttl = window
end

if count >= limit then
	return {0, count, ttl}
end

count = redis.call("INCR", key)
return {1, count, ttl}
`

var fixedWindow = redis.NewScript(luaScript)

// RedisLimiter shares windows between instances through Redis.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
}

func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, d time.Duration) (Result, error) {
	res, err := fixedWindow.Run(ctx, l.client, []string{l.prefix + key}, limit, d.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Result{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	return Result{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Limit:   limit,
		ResetAt: time.Now().Add(time.Duration(res[2]) * time.Millisecond),
	}, nil
}

var _ Limiter = (*RedisLimiter)(nil)
