package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "reserve:idem:"

// IdempotencyGuard claims a short-lived idempotency key before a Reserve
// attempt proceeds. It returns false if the key was already claimed (a
// retried POST for the same client idempotency header arriving again
// before the first attempt finished), so the handler can treat the retry
// as a duplicate instead of racing a second reservation attempt.
func IdempotencyGuard(ctx context.Context, redisClient *redis.Client, key string, ttl time.Duration) (claimed bool, err error) {
	if redisClient == nil {
		return true, nil
	}
	ok, err := redisClient.SetNX(ctx, idempotencyKeyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ReleaseIdempotencyKey clears a previously-claimed key, used when the
// attempt it guarded failed for a reason the client should be free to
// retry immediately (anything other than a successful commit); the same
// key can then be claimed again.
func ReleaseIdempotencyKey(ctx context.Context, redisClient *redis.Client, key string) {
	if redisClient == nil {
		return
	}
	redisClient.Del(ctx, idempotencyKeyPrefix+key)
}
