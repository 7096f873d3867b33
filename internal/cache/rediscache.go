package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces cache entries so the store can share a Redis
// database with other applications.
const keyPrefix = "certalign:pos:"

// RedisStore is a Redis-backed Store for deployments where multiple
// verifier processes share one cache. TTL handling is delegated to Redis
// key expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis instance described by url
// (e.g. redis://localhost:6379/0) and verifies the connection.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

// Get returns the cached payload for key, or (nil, nil) when absent.
// Expiry never needs handling here; Redis drops stale keys itself.
func (s *RedisStore) Get(ctx context.Context, key string) (*Payload, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return &payload, nil
}

// Set stores the payload under key with the configured TTL.
func (s *RedisStore) Set(ctx context.Context, key string, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// ClearExpired is a no-op for Redis; key expiry is native.
func (s *RedisStore) ClearExpired(_ context.Context) (int, error) {
	return 0, nil
}

// ClearAll removes every cache entry under the certalign prefix.
func (s *RedisStore) ClearAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

// Stats reports the number of live entries under the prefix.
func (s *RedisStore) Stats(ctx context.Context) (StoreStats, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return StoreStats{}, fmt.Errorf("redis scan: %w", err)
	}

	return StoreStats{
		Entries: count,
		TTL:     s.ttl,
		Backend: "redis",
	}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
