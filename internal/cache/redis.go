package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/city-weather-dashboard/internal/models"
)

const (
	redisRecordsKey = "dashboard:cities:records"
	redisOrderKey   = "dashboard:cities:order"
)

// RedisCache implements CityCache with a hash of JSON records and a list that
// keeps first-insertion order.
type RedisCache struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, opts ...Option) *RedisCache {
	o := buildOptions(opts)
	return &RedisCache{client: client, now: o.now}
}

// NewRedisClient builds a client for addr/db with the given dial/read timeout.
func NewRedisClient(addr, password string, db int, timeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
}

// Set implements CityCache.Set.
func (c *RedisCache) Set(ctx context.Context, city string, payload *models.CurrentResponse) error {
	raw, err := json.Marshal(models.CityRecord{City: city, Payload: payload, FetchedAt: c.now()})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	added, err := c.client.HSet(ctx, redisRecordsKey, city, raw).Result()
	if err != nil {
		return fmt.Errorf("redis hset %s: %w", city, err)
	}
	if added > 0 {
		if err := c.client.RPush(ctx, redisOrderKey, city).Err(); err != nil {
			return fmt.Errorf("redis rpush %s: %w", city, err)
		}
	}
	return nil
}

// Get implements CityCache.Get. Returns false, nil on cache miss.
func (c *RedisCache) Get(ctx context.Context, city string) (models.CityRecord, bool, error) {
	raw, err := c.client.HGet(ctx, redisRecordsKey, city).Bytes()
	if err == redis.Nil {
		return models.CityRecord{}, false, nil
	}
	if err != nil {
		return models.CityRecord{}, false, fmt.Errorf("redis hget %s: %w", city, err)
	}
	var rec models.CityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.CityRecord{}, false, fmt.Errorf("decode record %s: %w", city, err)
	}
	return rec, true, nil
}

// Clear implements CityCache.Clear.
func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, redisRecordsKey, redisOrderKey).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Entries implements CityCache.Entries.
func (c *RedisCache) Entries(ctx context.Context) ([]models.CityRecord, error) {
	order, err := c.client.LRange(ctx, redisOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	if len(order) == 0 {
		return nil, nil
	}
	values, err := c.client.HMGet(ctx, redisRecordsKey, order...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget: %w", err)
	}
	out := make([]models.CityRecord, 0, len(order))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec models.CityRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", order[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len implements CityCache.Len.
func (c *RedisCache) Len(ctx context.Context) (int, error) {
	n, err := c.client.HLen(ctx, redisRecordsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen: %w", err)
	}
	return int(n), nil
}

// Ping checks if redis is reachable. Used for health checks.
func (c *RedisCache) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
