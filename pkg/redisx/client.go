package redisx

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Config Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client.
func NewClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping verifies the connection.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close closes the client.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
