package database

import (
	"cardpay/config"
	"cardpay/helper"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InitRedis connects the shared transaction registry. Unlike a cache, the registry is
// required, so a failed ping is returned to the caller.
func InitRedis(ctx context.Context, cfg config.RegistryConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	helper.Info("Redis connection successful (%s)", cfg.RedisAddr)
	return client, nil
}
