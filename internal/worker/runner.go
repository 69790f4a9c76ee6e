package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"bulkops/internal/observability"
	"bulkops/internal/queue"
	"bulkops/internal/storage"
	"bulkops/internal/task"

	"github.com/sirupsen/logrus"
)

const (
	timeoutError    = "operation timed out"
	maxRetriesError = "max retries reached"
)

// Runner loads a task, runs its operation under the per-task timeout and
// writes the terminal state.
type Runner struct {
	repo     task.TaskRepositoryInterface
	store    storage.Storage
	registry Registry
	timeout  time.Duration
}

func NewRunner(repo task.TaskRepositoryInterface, store storage.Storage, registry Registry, timeout time.Duration) *Runner {
	return &Runner{repo: repo, store: store, registry: registry, timeout: timeout}
}

// Execute returns an error only for infrastructure failures worth a retry.
// Operation failures are recorded on the task and swallowed.
func (r *Runner) Execute(ctx context.Context, job queue.Job) error {
	taskID := job.TaskID
	t, err := r.repo.GetByID(ctx, taskID)
	if errors.Is(err, task.ErrNotFound) {
		logrus.WithField("task_id", taskID).Warn("Dropping job for unknown task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load task %d: %w", taskID, err)
	}

	log := logrus.WithFields(logrus.Fields{
		"task_id":      t.ID,
		"token":        t.Token,
		"requested_by": t.Parameters.Int(task.ParamRequestedBy),
	})

	if t.Status.Terminal() {
		log.Infof("Skipping task already %s", t.Status)
		return nil
	}

	op, err := t.Operation()
	if err != nil {
		return r.failUnrunnable(ctx, t, err)
	}
	handler, ok := r.registry[op]
	if !ok {
		return r.failUnrunnable(ctx, t, fmt.Errorf("%w: %s", task.ErrUnknownOperation, op))
	}

	h := task.NewHandle(r.repo, t)
	if err := h.Init(ctx, 0, ""); err != nil {
		if errors.Is(err, task.ErrCancelled) {
			log.Info("Task cancelled before start")
			return nil
		}
		return fmt.Errorf("failed to mark task %d as processing: %w", t.ID, err)
	}

	log = log.WithField("operation", op)
	log.Info("Task started")
	if job.Attempt > 0 {
		observability.GlobalMetrics.TaskRetried(string(op))
	}

	start := time.Now()
	runCtx, cancel := r.withTimeout(ctx)
	outcome, runErr := safeRun(runCtx, handler, t, h)
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	cancel()

	status, err := r.finalize(ctx, h, string(op), outcome, runErr, timedOut, log)
	if err != nil {
		return err
	}

	observability.GlobalMetrics.TaskProcessed(string(op), string(status), time.Since(start).Seconds())
	return nil
}

func (r *Runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// finalize maps the run result onto a terminal write and reports the status
// the task ended in.
func (r *Runner) finalize(ctx context.Context, h task.Handle, op string, outcome task.Outcome, runErr error, timedOut bool, log *logrus.Entry) (task.Status, error) {
	t := h.Task()

	switch {
	case runErr == nil:
		err := h.Finish(ctx, outcome.Result, outcome.Message)
		if errors.Is(err, task.ErrCancelled) {
			log.Info("Task cancelled before completion, discarding artifacts")
			r.discard(ctx, outcome.Artifacts, log)
			return task.StatusCancelled, nil
		}
		if err != nil {
			r.discard(ctx, outcome.Artifacts, log)
			return "", fmt.Errorf("failed to complete task %d: %w", t.ID, err)
		}
		log.Info("Task completed")
		return task.StatusCompleted, nil

	case errors.Is(runErr, task.ErrCancelled):
		log.Info("Task stopped after cancellation")
		return task.StatusCancelled, nil

	case ctx.Err() != nil:
		// Shutting down: hand the job back to the queue.
		return "", ctx.Err()

	case timedOut:
		observability.GlobalMetrics.TaskFailed(op, "timeout")
		return r.fail(ctx, h, timeoutError, log)

	default:
		log.WithError(runErr).Warn("Task failed")
		observability.GlobalMetrics.TaskFailed(op, "operation_error")
		return r.fail(ctx, h, runErr.Error(), log)
	}
}

func (r *Runner) fail(ctx context.Context, h task.Handle, errMsg string, log *logrus.Entry) (task.Status, error) {
	err := h.Fail(ctx, errMsg, "")
	if errors.Is(err, task.ErrCancelled) {
		return task.StatusCancelled, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to mark task %d as failed: %w", h.Task().ID, err)
	}
	log.WithField("error", errMsg).Info("Task marked failed")
	return task.StatusFailed, nil
}

// failUnrunnable fails a task the worker has no operation for. Retrying
// would not help.
func (r *Runner) failUnrunnable(ctx context.Context, t *task.Task, cause error) error {
	logrus.WithError(cause).WithField("task_id", t.ID).Error("Task cannot be run")
	if err := r.repo.MarkFailed(ctx, t.ID, cause.Error(), ""); err != nil && !errors.Is(err, task.ErrCancelled) {
		return fmt.Errorf("failed to mark task %d as failed: %w", t.ID, err)
	}
	return nil
}

// GiveUp forces a task that exhausted its retries into failed.
func (r *Runner) GiveUp(ctx context.Context, taskID int64) error {
	t, err := r.repo.GetByID(ctx, taskID)
	if errors.Is(err, task.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return nil
	}

	err = r.repo.MarkFailed(ctx, taskID, maxRetriesError, "")
	if errors.Is(err, task.ErrCancelled) || errors.Is(err, task.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}

	if op, err := t.Operation(); err == nil {
		observability.GlobalMetrics.TaskFailed(string(op), "max_retries")
	}
	return nil
}

func (r *Runner) discard(ctx context.Context, keys []string, log *logrus.Entry) {
	for _, key := range keys {
		if err := r.store.Delete(context.WithoutCancel(ctx), key); err != nil {
			log.WithError(err).Warnf("Failed to delete artifact %s", key)
		}
	}
}

func safeRun(ctx context.Context, handler Handler, t *task.Task, h task.Handle) (outcome task.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			logrus.WithField("task_id", t.ID).Errorf("Operation panicked: %v\n%s", p, debug.Stack())
			err = fmt.Errorf("operation panicked: %v", p)
		}
	}()
	return handler.Run(ctx, t, h)
}
