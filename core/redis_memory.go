package core

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisMemory adapts RedisClient to the Memory interface, so
// MemoryConfig.Provider == "redis" can back the persisted stats
// record (§4.F) with a real distributed store instead of
// process-local state. The pipeline's read cache does not use it.
type RedisMemory struct {
	client *RedisClient
}

// NewRedisMemory builds a Memory backed by Redis, using
// RedisDBCache for namespace isolation from the framework's other
// reserved databases (rate limiting, circuit breaker state, etc.).
func NewRedisMemory(cfg MemoryConfig, logger Logger) (*RedisMemory, error) {
	client, err := NewRedisClient(RedisClientOptions{
		RedisURL:  cfg.RedisURL,
		DB:        RedisDBCache,
		Namespace: "kenmeisync",
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &RedisMemory{client: client}, nil
}

func (m *RedisMemory) Get(ctx context.Context, key string) (string, error) {
	value, err := m.client.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

func (m *RedisMemory) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return m.client.Set(ctx, key, value, ttl)
}

func (m *RedisMemory) Delete(ctx context.Context, key string) error {
	return m.client.Del(ctx, key)
}

func (m *RedisMemory) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.client.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the underlying Redis connection.
func (m *RedisMemory) Close() error {
	return m.client.Close()
}
