package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crewbill/keysvc/internal/config"
	"github.com/crewbill/keysvc/pkg/logger"
)

// NewRedisClient connects to Redis and verifies the connection with a ping.
// A single address yields a standalone client, several yield a cluster
// client; the universal client hides the difference from callers.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, log logger.Logger) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addresses,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info(ctx, "redis connection established",
		logger.Any("addresses", cfg.Addresses))
	return client, nil
}
