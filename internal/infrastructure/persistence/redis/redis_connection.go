// Package redis provides Redis connection management for the token store.
// A single address yields a standalone client; several addresses yield a
// cluster client.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/contentsdk/internal/config"
	"github.com/turtacn/contentsdk/pkg/logger"
)

const (
	defaultAddr        = "localhost:6379"
	defaultPoolSize    = 10
	defaultMinIdle     = 2
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 3 * time.Second
	pingTimeout        = 5 * time.Second
)

// RedisConnection manages the Redis client lifecycle.
type RedisConnection struct {
	config config.RedisConfig
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisConnection creates a connection manager. Call Connect before GetClient.
func NewRedisConnection(cfg config.RedisConfig, log logger.Logger) *RedisConnection {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &RedisConnection{config: cfg, logger: log.WithComponent("redis")}
}

// Connect creates the client and verifies it with PING.
func (rc *RedisConnection) Connect(ctx context.Context) error {
	if rc.client != nil {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}

	addrs := rc.config.Addresses
	if len(addrs) == 0 {
		addrs = []string{defaultAddr}
	}
	poolSize := rc.config.PoolSize
	if poolSize == 0 {
		poolSize = defaultPoolSize
	}
	minIdle := rc.config.MinIdleConns
	if minIdle == 0 {
		minIdle = defaultMinIdle
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     rc.config.Password,
		DB:           rc.config.DB,
		PoolSize:     poolSize,
		MinIdleConns: minIdle,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultIOTimeout,
		WriteTimeout: defaultIOTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rc.logger.Error(ctx, "Redis ping failed", err, logger.Any("addrs", addrs))
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	rc.client = client
	rc.logger.Info(ctx, "Redis connection established",
		logger.Any("addrs", addrs),
		logger.Int("pool_size", poolSize),
	)
	return nil
}

// GetClient returns the client, or nil before Connect.
func (rc *RedisConnection) GetClient() redis.UniversalClient {
	return rc.client
}

// HealthCheck reports connectivity, latency and pool statistics.
func (rc *RedisConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	if rc.client == nil {
		return nil, fmt.Errorf("redis connection not initialized")
	}

	start := time.Now()
	err := rc.client.Ping(ctx).Err()
	health := map[string]interface{}{
		"connected":  err == nil,
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		health["error"] = err.Error()
		return health, err
	}

	stats := rc.client.PoolStats()
	health["total_conns"] = stats.TotalConns
	health["idle_conns"] = stats.IdleConns
	health["pool_timeouts"] = stats.Timeouts
	return health, nil
}

// Close releases the client.
func (rc *RedisConnection) Close() error {
	if rc.client == nil {
		return nil
	}
	if err := rc.client.Close(); err != nil {
		rc.logger.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	rc.client = nil
	return nil
}
