package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"storedash/backend/internal/domain"
)

// KeyPrefix namespaces every report cache entry.
const KeyPrefix = "storedash:report:"

type RedisReportCache struct {
	client redis.UniversalClient
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

// NewRedisReportCacheWithClient wraps an existing client.
func NewRedisReportCacheWithClient(client redis.UniversalClient) *RedisReportCache {
	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) Get(ctx context.Context, key string) ([]domain.ProductPerformanceRow, bool, error) {
	val, err := c.client.Get(ctx, KeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rows []domain.ProductPerformanceRow
	if err := json.Unmarshal([]byte(val), &rows); err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, rows []domain.ProductPerformanceRow, ttl time.Duration) error {
	if rows == nil {
		rows = []domain.ProductPerformanceRow{}
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, KeyPrefix+key, payload, ttl).Err()
}

// Purge drops every cached report, used after catalog edits change product names.
func (c *RedisReportCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, KeyPrefix+"*", 200).Iterator()
	keys := make([]string, 0, 64)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
