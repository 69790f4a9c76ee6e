//go:build integration

// Package testutil starts throwaway backing services for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"bulkops/internal/config"
	"bulkops/internal/db"

	"github.com/go-redis/redis/v8"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// TestEnv holds the migrated database of one test.
type TestEnv struct {
	DB     *sql.DB
	Gorm   *gorm.DB
	Config *config.Config
}

// SetupPostgres starts PostgreSQL, runs the migrations and registers
// cleanup with t.
func SetupPostgres(t *testing.T) *TestEnv {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "bulkops_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.Config{
		AppName: "integration-test",
		AppEnv:  "test",
		DB: config.DBConfig{
			Host:     host,
			Port:     port.Port(),
			User:     "postgres",
			Password: "postgres",
			Name:     "bulkops_test",
			SSLMode:  "disable",
		},
		Storage: config.StorageConfig{
			Driver: "local",
			Root:   t.TempDir(),
		},
		Import: config.ImportConfig{
			MaxUploadBytes: 5 * 1024 * 1024,
			CheckEvery:     10,
		},
		JWT: config.JWTConfig{
			Secret: "test-secret-key-for-integration",
		},
	}

	database := db.Init(&cfg.DB)
	t.Cleanup(func() { database.Close() })

	gdb, err := db.OpenGorm(database)
	if err != nil {
		t.Fatalf("Failed to open gorm: %v", err)
	}

	if err := db.RunMigrations(ctx, database, gdb); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &TestEnv{DB: database, Gorm: gdb, Config: cfg}
}

// SetupRedis starts Redis and returns a connected client.
func SetupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("Failed to get redis port: %v", err)
	}

	client, err := db.OpenRedis(ctx, &config.RedisConfig{Host: host, Port: port.Port(), RedisDB: "0"})
	if err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
