package shared

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobLockKey builds redis keys for worker critical sections.
func JobLockKey(job string) string {
	return "jobs:" + job + ":lock"
}

// AcquireLock takes a best-effort distributed lock. The boolean reports
// whether this caller now holds it.
func AcquireLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (bool, error) {
	return client.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseLock drops the lock before its TTL.
func ReleaseLock(ctx context.Context, client *redis.Client, key string) error {
	return client.Del(ctx, key).Err()
}
