package middleware

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bulkops/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

//go:embed rate_limiter.lua
var luaScript string

var tokenBucket = redis.NewScript(luaScript)

type RateLimiterConfig struct {
	Capacity   int     // burst size
	RefillRate float64 // tokens per second
	Scope      string  // separates buckets of different route groups
}

// DefaultRateLimiterConfig allows bursts of 20 and 10 requests per second.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		Capacity:   20,
		RefillRate: 10.0,
		Scope:      "api",
	}
}

// StartOperationRateLimiter guards the endpoints that enqueue bulk work:
// a burst of 5, then one new operation every 10 seconds.
func StartOperationRateLimiter() *RateLimiterConfig {
	return &RateLimiterConfig{
		Capacity:   5,
		RefillRate: 0.1,
		Scope:      "start",
	}
}

// RateLimiterMiddleware applies a per-user token bucket kept in Redis. It
// fails open when Redis is unavailable.
func RateLimiterMiddleware(redisClient *redis.Client, config *RateLimiterConfig) gin.HandlerFunc {
	if err := tokenBucket.Load(context.Background(), redisClient).Err(); err != nil {
		logrus.WithError(err).Warn("Failed to preload rate limiter script, it will be sent on first use")
	}

	return func(c *gin.Context) {
		id, err := auth.IdentityFrom(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized - no caller identity",
			})
			return
		}

		key := UserRateLimiterKey(config.Scope, id.OwnerID)
		now := strconv.FormatFloat(float64(time.Now().UnixNano())/1e9, 'f', 3, 64)

		allowed, err := tokenBucket.Run(c.Request.Context(), redisClient, []string{key},
			config.Capacity,
			config.RefillRate,
			now,
		).Int64()
		if err != nil {
			logrus.WithError(err).Error("Failed to execute rate limiter script")
			c.Next()
			return
		}

		if allowed == 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": fmt.Sprintf("%.1f seconds", 1.0/config.RefillRate),
			})
			return
		}

		c.Next()
	}
}

func UserRateLimiterKey(scope string, userID int) string {
	return fmt.Sprintf("rate_limiter:%s:user:%d", scope, userID)
}
