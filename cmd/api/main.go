package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bulkops/internal/cache"
	"bulkops/internal/config"
	"bulkops/internal/db"
	"bulkops/internal/handler"
	"bulkops/internal/observability"
	"bulkops/internal/queue"
	"bulkops/internal/storage"
	"bulkops/internal/task"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	observability.SetupLogging(&cfg.Log)
	if cfg.JWT.Secret == "" {
		logrus.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB := db.Init(&cfg.DB)
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close database connection")
		}
	}()

	gdb, err := db.OpenGorm(sqlDB)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open gorm")
	}
	if cfg.DB.AutoMigrate {
		if err := db.RunMigrations(ctx, sqlDB, gdb); err != nil {
			logrus.WithError(err).Fatal("Failed to run migrations")
		}
	}

	rdb, err := db.OpenRedis(ctx, &cfg.Redis)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close redis connection")
		}
	}()

	store, err := storage.New(&cfg.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open storage")
	}
	defer store.Close()

	broker, err := queue.New(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to queue")
	}
	defer broker.Close()

	observability.InitMetrics()
	observability.RegisterDBStats(sqlDB, cfg.DB.Name)
	logrus.Info("Metrics initialized")

	repo := task.NewTaskRepository(sqlDB)
	dispatcher := task.NewDispatcher(repo, broker, store, cfg.Import.MaxUploadBytes)
	gate := task.NewGate(repo, cache.NewTaskCache(rdb), store)
	service := task.NewTaskService(dispatcher, gate)

	r := handler.SetupHandler(service, rdb, cfg.JWT.Secret, observability.GlobalMetrics)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("Starting server on :%s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
}
