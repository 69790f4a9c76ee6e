package testutil

import (
	"context"
	"sync"

	"bulkops/internal/task"
)

// FakeHandle is an in-memory task.Handle. Cancel makes every later
// CheckCancelled and Finish report task.ErrCancelled.
type FakeHandle struct {
	mu        sync.Mutex
	task      *task.Task
	cancelled bool

	Progress  []int
	Messages  []string
	Result    task.Payload
	FailError string
	Finished  bool
}

func NewFakeHandle(t *task.Task) *FakeHandle {
	if t == nil {
		t = &task.Task{ID: 1, Token: "test-token"}
	}
	return &FakeHandle{task: t}
}

func (h *FakeHandle) Task() *task.Task {
	return h.task
}

func (h *FakeHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = true
}

func (h *FakeHandle) Init(ctx context.Context, totalHint int, message string) error {
	return h.Advance(ctx, 0, message)
}

func (h *FakeHandle) Advance(_ context.Context, progress int, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return task.ErrCancelled
	}
	h.Progress = append(h.Progress, progress)
	h.Messages = append(h.Messages, message)
	return nil
}

func (h *FakeHandle) Finish(_ context.Context, result task.Payload, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return task.ErrCancelled
	}
	h.Finished = true
	h.Result = result
	h.Messages = append(h.Messages, message)
	return nil
}

func (h *FakeHandle) Fail(_ context.Context, errorMessage, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return task.ErrCancelled
	}
	h.FailError = errorMessage
	return nil
}

func (h *FakeHandle) CheckCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return task.ErrCancelled
	}
	return nil
}
