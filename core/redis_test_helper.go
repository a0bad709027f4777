package core

import (
	"context"
	"net"
	"testing"
	"time"
)

// requireRedis checks if Redis is available and skips the test if not.
// This provides consistent Redis availability checking across all tests.
func requireRedis(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping Redis test in short mode")
	}

	if !isRedisReachable() {
		t.Skip("Redis not available at localhost:6379 (connection refused)")
	}

	client, err := NewRedisClient(RedisClientOptions{
		RedisURL:  "redis://localhost:6379",
		DB:        RedisDBCache,
		Namespace: "kenmeisync-test",
	})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Skipf("Redis not responsive: %v", err)
	}
}

// isRedisReachable performs a quick TCP connection check.
func isRedisReachable() bool {
	conn, err := net.DialTimeout("tcp", "localhost:6379", 1*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
