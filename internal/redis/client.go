package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chirm-app/chirm-server/config"
)

var client *redis.Client

// Connect initializes the shared Redis client and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig) error {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// GetClient returns the shared Redis client instance.
func GetClient() *redis.Client {
	return client
}
