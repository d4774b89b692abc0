package dedup

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

const keyPrefix = "notifications:dedup:"

// RedisDeduper claims keys with SETNX and lets them expire after ttl.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper constructs a deduper; ttl defaults to 48h.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("redis client is required")
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, keyPrefix+key).Err()
}

var _ service.Deduper = (*RedisDeduper)(nil)
