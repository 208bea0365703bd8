package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"bulksender/internal/model"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func operationKey(id string) string {
	return "op:" + id
}

func (c *RedisCache) Store(ctx context.Context, op *model.Operation) error {
	b, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, operationKey(op.ID), b, c.ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, id string) (*model.Operation, bool) {
	raw, err := c.rdb.Get(ctx, operationKey(id)).Bytes()
	if err != nil {
		// redis.Nil and real errors both fall back to storage.
		return nil, false
	}

	var op model.Operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, false
	}
	return &op, true
}
