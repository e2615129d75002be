package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisDedupe struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDedupe(rdb *redis.Client, ttl time.Duration) *RedisDedupe {
	return &RedisDedupe{rdb: rdb, ttl: ttl}
}

func dedupeKey(providerMessageID string) string {
	return fmt.Sprintf("pmid:%s", providerMessageID)
}

func (c *RedisDedupe) Seen(ctx context.Context, providerMessageID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, dedupeKey(providerMessageID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisDedupe) MarkSeen(ctx context.Context, providerMessageID string) error {
	return c.rdb.Set(ctx, dedupeKey(providerMessageID), 1, c.ttl).Err()
}
