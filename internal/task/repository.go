package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bulkops/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, id int64) (*Task, error)
	GetByToken(ctx context.Context, token string) (*Task, error)
	GetByOwner(ctx context.Context, ownerID int) ([]*Task, error)
	GetStatus(ctx context.Context, id int64) (Status, error)
	MarkProcessing(ctx context.Context, id int64, message string) error
	UpdateProgress(ctx context.Context, id int64, progress int, message string) error
	MarkCompleted(ctx context.Context, id int64, result Payload, message string) error
	MarkFailed(ctx context.Context, id int64, errorMessage, message string) error
	Cancel(ctx context.Context, token, reason string) (*Task, error)
}

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepositoryInterface {
	return &TaskRepository{db: db}
}

const taskColumns = `
	id, token, type, subtype, status, progress,
	parameters, result, error, message, owner_id,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID,
		&t.Token,
		&t.Type,
		&t.Subtype,
		&t.Status,
		&t.Progress,
		&t.Parameters,
		&t.Result,
		&t.Error,
		&t.Message,
		&t.OwnerID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a queued task and fills in its id, token and timestamps.
func (r *TaskRepository) Create(ctx context.Context, task *Task) error {
	if task.Token == "" {
		task.Token = uuid.NewString()
	}
	if task.Parameters == nil {
		task.Parameters = Payload{}
	}
	task.Status = StatusQueued
	task.Progress = 0

	query := `
		INSERT INTO tasks (
			token, type, subtype, status, progress, parameters, owner_id,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, 0, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	return utils.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		return tx.QueryRowContext(
			ctx,
			query,
			task.Token,
			task.Type,
			task.Subtype,
			task.Status,
			task.Parameters,
			task.OwnerID,
		).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	})
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *TaskRepository) GetByToken(ctx context.Context, token string) (*Task, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE token = $1`, token)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *TaskRepository) GetByOwner(ctx context.Context, ownerID int) ([]*Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logrus.WithError(err).Error("Error scanning task row")
			continue
		}
		tasks = append(tasks, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return tasks, nil
}

func (r *TaskRepository) GetStatus(ctx context.Context, id int64) (Status, error) {
	var status Status
	err := r.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return status, err
}

// transition locks the row, checks the lifecycle table and runs apply in the
// same transaction. Writes against a cancelled task fail with ErrCancelled.
func (r *TaskRepository) transition(ctx context.Context, id int64, to Status, apply func(tx *sql.Tx) error) error {
	return utils.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		var current Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if current == StatusCancelled {
			return ErrCancelled
		}
		if !CanTransition(current, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
		}
		return apply(tx)
	})
}

// MarkProcessing starts (or restarts, on redelivery) a run from zero.
func (r *TaskRepository) MarkProcessing(ctx context.Context, id int64, message string) error {
	logrus.WithField("task_id", id).Debug("Marking task as processing")
	return r.transition(ctx, id, StatusProcessing, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET status = 'processing',
			    progress = 0,
			    result = NULL,
			    error = NULL,
			    message = NULLIF($2, ''),
			    updated_at = NOW()
			WHERE id = $1
		`, id, message)
		return err
	})
}

// UpdateProgress never lowers the stored progress. An empty message keeps
// the previous one.
func (r *TaskRepository) UpdateProgress(ctx context.Context, id int64, progress int, message string) error {
	return r.transition(ctx, id, StatusProcessing, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET progress = GREATEST(progress, $2),
			    message = COALESCE(NULLIF($3, ''), message),
			    updated_at = NOW()
			WHERE id = $1 AND status = 'processing'
		`, id, progress, message)
		return err
	})
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, id int64, result Payload, message string) error {
	if result == nil {
		result = Payload{}
	}
	return r.transition(ctx, id, StatusCompleted, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET status = 'completed',
			    progress = 100,
			    result = $2,
			    error = NULL,
			    message = NULLIF($3, ''),
			    updated_at = NOW()
			WHERE id = $1
		`, id, result, message)
		return err
	})
}

func (r *TaskRepository) MarkFailed(ctx context.Context, id int64, errorMessage, message string) error {
	return r.transition(ctx, id, StatusFailed, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET status = 'failed',
			    result = NULL,
			    error = $2,
			    message = NULLIF($3, ''),
			    updated_at = NOW()
			WHERE id = $1
		`, id, errorMessage, message)
		return err
	})
}

// Cancel flips a queued or processing task to cancelled. Cancelling an
// already cancelled task returns it unchanged.
func (r *TaskRepository) Cancel(ctx context.Context, token, reason string) (*Task, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrNotFound
	}

	var out *Task
	err := utils.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE token = $1 FOR UPDATE`, token)
		t, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		switch t.Status {
		case StatusCancelled:
			out = t
			return nil
		case StatusCompleted, StatusFailed:
			return ErrInvalidState
		}

		row = tx.QueryRowContext(ctx, `
			UPDATE tasks
			SET status = 'cancelled',
			    result = NULL,
			    error = $2,
			    message = $3,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING `+taskColumns, t.ID, reason, "Operation cancelled")
		out, err = scanTask(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
