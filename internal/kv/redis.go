// ABOUTME: Redis implementation of the kv.Client interface using go-redis
// ABOUTME: Maps redis.Nil to ErrNotFound and transport failures to ErrUnavailable

package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient implements Client on top of a go-redis connection pool.
type RedisClient struct {
	rdb *redis.Client
}

// RedisOptions holds the connection parameters for NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", opts.Addr, err)
	}

	return &RedisClient{rdb: rdb}, nil
}

// Get fetches a scalar value.
func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", translateErr(err)
	}
	return val, nil
}

// Set stores a scalar value with an optional TTL.
func (c *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

// Del removes keys.
func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

// HGet fetches one hash field.
func (c *RedisClient) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := c.rdb.HGet(ctx, key, field).Result()
	if err != nil {
		return "", translateErr(err)
	}
	return val, nil
}

// HSet upserts one hash field.
func (c *RedisClient) HSet(ctx context.Context, key, field, value string) error {
	if err := c.rdb.HSet(ctx, key, field, value).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

// HDel removes hash fields.
func (c *RedisClient) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := c.rdb.HDel(ctx, key, fields...).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

// ExpireIn sets or refreshes a key's TTL.
func (c *RedisClient) ExpireIn(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

// Close closes the connection pool.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

// translateErr converts go-redis errors into the package sentinels so callers
// never import the driver to classify failures.
func translateErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
