package handler

import (
	"net/http"

	"bulkops/internal/middleware"
	"bulkops/internal/observability"
	"bulkops/internal/task"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupHandler builds the HTTP engine around an already wired task service.
func SetupHandler(service task.TaskServiceInterface, redisClient *redis.Client, jwtSecret string, metrics *observability.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.PrometheusMiddleware(metrics))

	taskController := task.NewTaskController(service)
	setupRoutes(r, taskController, redisClient, jwtSecret)

	return r
}

// setupRoutes configures all application routes
func setupRoutes(r *gin.Engine, taskCtrl *task.TaskController, redisClient *redis.Client, jwtSecret string) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected routes - API v1
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtSecret))
	api.Use(middleware.RateLimiterMiddleware(redisClient, middleware.DefaultRateLimiterConfig()))
	{
		start := middleware.RateLimiterMiddleware(redisClient, middleware.StartOperationRateLimiter())
		api.POST("/imports/:subtype", start, taskCtrl.StartImport)
		api.POST("/exports/:subtype", start, taskCtrl.StartExport)

		api.GET("/tasks", taskCtrl.ListTasks)
		api.GET("/tasks/:token", taskCtrl.GetStatus)
		api.POST("/tasks/:token/cancel", taskCtrl.Cancel)
		api.GET("/tasks/:token/download", taskCtrl.Download)
	}
}
