package task

import (
	"context"
	"fmt"
)

// Reporter writes lifecycle and progress updates for one task. Every call
// is a single immediate write.
type Reporter interface {
	Init(ctx context.Context, totalHint int, message string) error
	Advance(ctx context.Context, progress int, message string) error
	Finish(ctx context.Context, result Payload, message string) error
	Fail(ctx context.Context, errorMessage, message string) error
}

// CancellationChecker returns ErrCancelled once the task has been cancelled.
type CancellationChecker interface {
	CheckCancelled(ctx context.Context) error
}

// Handle is what a running operation receives.
type Handle interface {
	Reporter
	CancellationChecker
	Task() *Task
}

type handle struct {
	repo    TaskRepositoryInterface
	task    *Task
	maxSeen int
}

func NewHandle(repo TaskRepositoryInterface, t *Task) Handle {
	return &handle{repo: repo, task: t}
}

func (h *handle) Task() *Task {
	return h.task
}

func (h *handle) Init(ctx context.Context, totalHint int, message string) error {
	if message == "" {
		message = "Starting"
		if totalHint > 0 {
			message = fmt.Sprintf("Starting, %d items to process", totalHint)
		}
	}
	if err := h.repo.MarkProcessing(ctx, h.task.ID, message); err != nil {
		return err
	}
	h.maxSeen = 0
	h.task.Status = StatusProcessing
	h.task.Progress = 0
	return nil
}

func (h *handle) Advance(ctx context.Context, progress int, message string) error {
	progress = clampProgress(progress)
	if progress < h.maxSeen {
		progress = h.maxSeen
	}
	if err := h.repo.UpdateProgress(ctx, h.task.ID, progress, message); err != nil {
		return err
	}
	h.maxSeen = progress
	h.task.Progress = progress
	return nil
}

func (h *handle) Finish(ctx context.Context, result Payload, message string) error {
	if err := h.repo.MarkCompleted(ctx, h.task.ID, result, message); err != nil {
		return err
	}
	h.maxSeen = 100
	h.task.Status = StatusCompleted
	h.task.Progress = 100
	h.task.Result = result
	return nil
}

func (h *handle) Fail(ctx context.Context, errorMessage, message string) error {
	if err := h.repo.MarkFailed(ctx, h.task.ID, errorMessage, message); err != nil {
		return err
	}
	h.task.Status = StatusFailed
	h.task.Error = &errorMessage
	return nil
}

func (h *handle) CheckCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	status, err := h.repo.GetStatus(ctx, h.task.ID)
	if err != nil {
		return err
	}
	if status == StatusCancelled {
		h.task.Status = StatusCancelled
		return ErrCancelled
	}
	return nil
}

// Interpolate maps done/total onto the [start, end] progress window.
func Interpolate(start, end, done, total int) int {
	if total <= 0 {
		return end
	}
	if done > total {
		done = total
	}
	return start + (end-start)*done/total
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
