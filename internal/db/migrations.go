package db

import (
	"context"
	"database/sql"
	"fmt"

	"bulkops/internal/academic"

	"gorm.io/gorm"
)

const tasksSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id BIGSERIAL PRIMARY KEY,
	token UUID NOT NULL UNIQUE,
	type VARCHAR(20) NOT NULL,
	subtype VARCHAR(50) NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'queued',
	progress SMALLINT NOT NULL DEFAULT 0,
	parameters JSONB NOT NULL DEFAULT '{}'::jsonb,
	result JSONB,
	error TEXT,
	message TEXT,
	owner_id INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner_created ON tasks (owner_id, created_at DESC);
`

// RunMigrations creates the task table and migrates the academic entities.
func RunMigrations(ctx context.Context, sqlDB *sql.DB, gdb *gorm.DB) error {
	if _, err := sqlDB.ExecContext(ctx, tasksSchema); err != nil {
		return fmt.Errorf("failed to create tasks table: %w", err)
	}

	if err := gdb.WithContext(ctx).AutoMigrate(
		&academic.Level{},
		&academic.Program{},
		&academic.Student{},
		&academic.Course{},
		&academic.Enrollment{},
	); err != nil {
		return fmt.Errorf("failed to migrate academic tables: %w", err)
	}

	return nil
}
