package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript runs the read-check-increment server-side in one atomic
// execution. KEYS[1] is the counter key, ARGV[1] the limit, ARGV[2] the
// window in milliseconds. Reply: {count, pttl_ms, allowed}.
var takeScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= limit then
	return {count, redis.call("PTTL", KEYS[1]), 0}
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {count, redis.call("PTTL", KEYS[1]), 1}
`)

// RedisStore keeps fixed-window counters in Redis so one limit holds
// across every service instance sharing the store.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs the store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:"}
}

// Take implements Store. Errors mean the store could not decide; the
// caller applies its declared fail-open or fail-closed policy.
func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: false, Limit: limit, RetryAfter: window}, nil
	}

	res, err := takeScript.Run(ctx, s.client, []string{s.prefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis take: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: redis take: unexpected reply length %d", len(res))
	}

	count, pttl, allowed := res[0], res[1], res[2] == 1
	untilReset := window
	if pttl > 0 {
		untilReset = time.Duration(pttl) * time.Millisecond
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Limit: limit, Remaining: remaining, RetryAfter: untilReset}, nil
}
