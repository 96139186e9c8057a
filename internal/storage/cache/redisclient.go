package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redistransport "github.com/tinywideclouds/go-dining-satellite/internal/transport/redis"
)

// ErrMiss reports an absent or expired key.
var ErrMiss = errors.New("cache miss")

// RedisClient is the CacheClient the decorators run against in production.
// Values travel as JSON.
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient opens its own connection, dialled the same way as the Redis
// transport.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	rdb, err := redistransport.Dial(addr, password, db)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return WrapRedisClient(rdb), nil
}

// WrapRedisClient shares rdb. Close then closes rdb for every user.
func WrapRedisClient(rdb *redis.Client) *RedisClient {
	return &RedisClient{rdb: rdb}
}

func (c *RedisClient) Get(ctx context.Context, key string, dest any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return fmt.Errorf("%w: %s", ErrMiss, key)
	case err != nil:
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("cache entry %s is not valid json: %w", key, err)
	}
	return nil
}

// Set stores value for ttl. A zero ttl keeps the key until it is deleted.
func (c *RedisClient) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// Del is a no-op for absent keys.
func (c *RedisClient) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
