package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bulkops/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// OpenRedis connects to Redis, retrying the ping like Init does for
// Postgres. The status cache, the rate limiter and the Redis queue driver
// all share clients built here.
func OpenRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	dbNum, err := strconv.Atoi(cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis DB number %q: %w", cfg.RedisDB, err)
	}

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       dbNum,
	})

	const attempts = 5
	for i := 1; i <= attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			logrus.Infof("Redis connection established on %s", addr)
			return client, nil
		}
		logrus.Warnf("Failed to ping Redis (attempt %d/%d): %v", i, attempts, err)

		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(i) * time.Second):
		}
	}

	client.Close()
	return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
}
