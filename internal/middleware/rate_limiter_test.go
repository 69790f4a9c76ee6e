package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bulkops/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRouter creates a test Gin router with rate limiter
func setupTestRouter(redisClient *redis.Client, config *RateLimiterConfig, userID int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.Use(func(c *gin.Context) {
		auth.SetIdentity(c, auth.Identity{OwnerID: userID})
		c.Next()
	})

	router.Use(RateLimiterMiddleware(redisClient, config))

	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	return router
}

func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRateLimiter_NoIdentityInContext(t *testing.T) {
	redisClient := unreachableRedis()
	defer redisClient.Close()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimiterMiddleware(redisClient, DefaultRateLimiterConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "no caller identity")
}

func TestRateLimiter_RedisFailure_FailOpen(t *testing.T) {
	redisClient := unreachableRedis()
	defer redisClient.Close()

	router := setupTestRouter(redisClient, DefaultRateLimiterConfig(), 1)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUserRateLimiterKey(t *testing.T) {
	tests := []struct {
		name     string
		scope    string
		userID   int
		expected string
	}{
		{name: "api user 1", scope: "api", userID: 1, expected: "rate_limiter:api:user:1"},
		{name: "start user 100", scope: "start", userID: 100, expected: "rate_limiter:start:user:100"},
		{name: "system user", scope: "api", userID: 0, expected: "rate_limiter:api:user:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, UserRateLimiterKey(tt.scope, tt.userID))
		})
	}
}

func TestRateLimiterConfigs(t *testing.T) {
	def := DefaultRateLimiterConfig()
	require.NotNil(t, def)
	assert.Equal(t, 20, def.Capacity)
	assert.Equal(t, 10.0, def.RefillRate)

	start := StartOperationRateLimiter()
	assert.Less(t, start.Capacity, def.Capacity)
	assert.NotEqual(t, def.Scope, start.Scope)
}
