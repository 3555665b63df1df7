package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/beaconmeet/relay-server-go/internal/clock"
	appredis "github.com/beaconmeet/relay-server-go/internal/redis"
)

// rateLimitScript is a Lua script for sliding window rate limiting.
// Returns {allowed, remaining, resetAt}.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, member)
redis.call('EXPIRE', key, window + 10)

return {1, limit - count - 1, now + window}
`)

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a sliding window limiter shared by every server instance.
type RateLimiter struct {
	client *redis.Client
	clock  clock.Clock
}

func NewRateLimiter(client *redis.Client, clk clock.Clock) *RateLimiter {
	return &RateLimiter{client: client, clock: clk}
}

// CheckLimit counts one request against key. Callers decide how to treat an error.
func (rl *RateLimiter) CheckLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) (RateLimitResult, error) {
	now := rl.clock.Now().Unix()

	result, err := rateLimitScript.Run(
		ctx,
		rl.client,
		[]string{appredis.RateLimitKey(key)},
		now,
		int64(window.Seconds()),
		limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit check: %w", err)
	}

	if len(result) != 3 {
		return RateLimitResult{}, fmt.Errorf("rate limit check: unexpected result length %d", len(result))
	}

	return RateLimitResult{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
		ResetAt:   time.Unix(result[2], 0),
	}, nil
}
