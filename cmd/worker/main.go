package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bulkops/internal/config"
	"bulkops/internal/db"
	"bulkops/internal/observability"
	"bulkops/internal/queue"
	"bulkops/internal/storage"
	"bulkops/internal/task"
	"bulkops/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	observability.SetupLogging(&cfg.Log)

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

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logrus.Infof("Worker metrics server started on %s", cfg.Worker.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("Metrics server stopped")
		}
	}()

	repo := task.NewTaskRepository(sqlDB)
	registry := worker.NewRegistry(gdb, store, cfg.Import.CheckEvery)
	runner := worker.NewRunner(repo, store, registry, cfg.Worker.TaskTimeout)

	logrus.Infof("Starting %d workers", cfg.Worker.Count)
	worker.Pool(ctx, cfg.Worker.Count, broker, runner, cfg.Worker.MaxRetries)
	logrus.Info("Workers stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
