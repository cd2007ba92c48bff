package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// Redis is a fixed-window limiter whose counters live in Redis, so every
// process instance behind a load balancer draws from one shared budget.
// INCR is atomic on the server side; no client-side locking is needed.
type Redis struct {
	client *redis.Client
	limit  int
}

// NewRedis builds a limiter admitting at most limit calls per key per
// window, counted across all processes sharing the Redis instance.
func NewRedis(client *redis.Client, limit int) *Redis {
	return &Redis{client: client, limit: limit}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := redisKeyPrefix + key

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit expire: %w", err)
		}
	}
	ttl, err := r.client.TTL(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit ttl: %w", err)
	}
	if ttl < 0 {
		// The key lost its TTL (for example an expire lost to a crash);
		// re-arm the window rather than counting forever.
		ttl = Window
		if err := r.client.Expire(ctx, redisKey, Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit expire: %w", err)
		}
	}

	d := Decision{Limit: r.limit}
	if count <= int64(r.limit) {
		d.Admitted = true
	}
	remaining := r.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	d.Remaining = remaining
	d.ResetSeconds = int(ttl / time.Second)
	return d, nil
}
