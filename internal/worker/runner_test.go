package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bulkops/internal/queue"
	"bulkops/internal/storage"
	"bulkops/internal/task"
	"bulkops/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, t *task.Task, h task.Handle) (task.Outcome, error)

func (f handlerFunc) Run(ctx context.Context, t *task.Task, h task.Handle) (task.Outcome, error) {
	return f(ctx, t, h)
}

func queuedExport(id int64) *task.Task {
	return &task.Task{
		ID:      id,
		Token:   "tok",
		Type:    task.TypeExport,
		Subtype: "schedules",
		Status:  task.StatusQueued,
	}
}

func newRunner(t *testing.T, repo *testutil.MockTaskRepository, h Handler, timeout time.Duration) (*Runner, storage.Storage) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir(), "")
	require.NoError(t, err)
	return NewRunner(repo, store, Registry{task.OpScheduleExport: h}, timeout), store
}

func TestRunner_CompletesTask(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	repo.On("GetByID", mock.Anything, int64(1)).Return(queuedExport(1), nil)
	repo.On("MarkProcessing", mock.Anything, int64(1), "Starting").Return(nil)
	repo.On("UpdateProgress", mock.Anything, int64(1), 50, "half").Return(nil)
	repo.On("MarkCompleted", mock.Anything, int64(1), task.Payload{"produced": 2}, "done").Return(nil)

	r, _ := newRunner(t, repo, handlerFunc(func(ctx context.Context, _ *task.Task, h task.Handle) (task.Outcome, error) {
		if err := h.Advance(ctx, 50, "half"); err != nil {
			return task.Outcome{}, err
		}
		return task.Outcome{Result: task.Payload{"produced": 2}, Message: "done"}, nil
	}), 0)

	require.NoError(t, r.Execute(context.Background(), queue.Job{TaskID: 1}))
	repo.AssertExpectations(t)
}

func TestRunner_OperationErrorFailsTaskWithoutRetry(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	repo.On("GetByID", mock.Anything, int64(2)).Return(queuedExport(2), nil)
	repo.On("MarkProcessing", mock.Anything, int64(2), mock.Anything).Return(nil)
	repo.On("MarkFailed", mock.Anything, int64(2), "term filter is required", "").Return(nil)

	r, _ := newRunner(t, repo, handlerFunc(func(context.Context, *task.Task, task.Handle) (task.Outcome, error) {
		return task.Outcome{}, errors.New("term filter is required")
	}), 0)

	assert.NoError(t, r.Execute(context.Background(), queue.Job{TaskID: 2}))
	repo.AssertExpectations(t)
}

func TestRunner_TimeoutFailsTask(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	repo.On("GetByID", mock.Anything, int64(3)).Return(queuedExport(3), nil)
	repo.On("MarkProcessing", mock.Anything, int64(3), mock.Anything).Return(nil)
	repo.On("MarkFailed", mock.Anything, int64(3), "operation timed out", "").Return(nil)

	r, _ := newRunner(t, repo, handlerFunc(func(ctx context.Context, _ *task.Task, _ task.Handle) (task.Outcome, error) {
		<-ctx.Done()
		return task.Outcome{}, ctx.Err()
	}), 20*time.Millisecond)

	assert.NoError(t, r.Execute(context.Background(), queue.Job{TaskID: 3}))
	repo.AssertExpectations(t)
}

func TestRunner_CancelledDuringRunWritesNothing(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	repo.On("GetByID", mock.Anything, int64(4)).Return(queuedExport(4), nil)
	repo.On("MarkProcessing", mock.Anything, int64(4), mock.Anything).Return(nil)
	repo.On("GetStatus", mock.Anything, int64(4)).Return(task.StatusCancelled, nil)

	r, _ := newRunner(t, repo, handlerFunc(func(ctx context.Context, _ *task.Task, h task.Handle) (task.Outcome, error) {
		return task.Outcome{}, h.CheckCancelled(ctx)
	}), 0)

	assert.NoError(t, r.Execute(context.Background(), queue.Job{TaskID: 4}))
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunner_CancelledBeforeFinishDiscardsArtifacts(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	repo.On("GetByID", mock.Anything, int64(5)).Return(queuedExport(5), nil)
	repo.On("MarkProcessing", mock.Anything, int64(5), mock.Anything).Return(nil)
	repo.On("MarkCompleted", mock.Anything, int64(5), mock.Anything, mock.Anything).Return(task.ErrCancelled)

	store, err := storage.NewLocal(t.TempDir(), "")
	require.NoError(t, err)
	key := storage.NewKey(storage.ExportsPrefix, ".zip")

	r := NewRunner(repo, store, Registry{
		task.OpScheduleExport: handlerFunc(func(ctx context.Context, _ *task.Task, _ task.Handle) (task.Outcome, error) {
			if err := store.Save(ctx, key, strings.NewReader("zip")); err != nil {
				return task.Outcome{}, err
			}
			return task.Outcome{Result: task.Payload{task.ResultFilePath: key}, Artifacts: []string{key}}, nil
		}),
	}, 0)

	require.NoError(t, r.Execute(context.Background(), queue.Job{TaskID: 5}))

	exists, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, exists)
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunner_PanicFailsTask(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	repo.On("GetByID", mock.Anything, int64(6)).Return(queuedExport(6), nil)
	repo.On("MarkProcessing", mock.Anything, int64(6), mock.Anything).Return(nil)
	repo.On("MarkFailed", mock.Anything, int64(6), "operation panicked: boom", "").Return(nil)

	r, _ := newRunner(t, repo, handlerFunc(func(context.Context, *task.Task, task.Handle) (task.Outcome, error) {
		panic("boom")
	}), 0)

	assert.NoError(t, r.Execute(context.Background(), queue.Job{TaskID: 6}))
	repo.AssertExpectations(t)
}

func TestRunner_SkipsTerminalTask(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	cancelled := queuedExport(7)
	cancelled.Status = task.StatusCancelled
	repo.On("GetByID", mock.Anything, int64(7)).Return(cancelled, nil)

	r, _ := newRunner(t, repo, nil, 0)

	assert.NoError(t, r.Execute(context.Background(), queue.Job{TaskID: 7}))
	repo.AssertNotCalled(t, "MarkProcessing", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunner_UnknownTaskIsDropped(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	repo.On("GetByID", mock.Anything, int64(8)).Return(nil, task.ErrNotFound)

	r, _ := newRunner(t, repo, nil, 0)

	assert.NoError(t, r.Execute(context.Background(), queue.Job{TaskID: 8}))
}

func TestRunner_InfrastructureErrorIsReturned(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	repo.On("GetByID", mock.Anything, int64(9)).Return(queuedExport(9), nil)
	repo.On("MarkProcessing", mock.Anything, int64(9), mock.Anything).Return(errors.New("connection refused"))

	r, _ := newRunner(t, repo, nil, 0)

	assert.ErrorContains(t, r.Execute(context.Background(), queue.Job{TaskID: 9}), "connection refused")
}

func TestRunner_UnregisteredOperationFails(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	tk := queuedExport(10)
	tk.Type, tk.Subtype = task.TypeImport, "students"
	repo.On("GetByID", mock.Anything, int64(10)).Return(tk, nil)
	repo.On("MarkFailed", mock.Anything, int64(10), mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "student_import")
	}), "").Return(nil)

	r, _ := newRunner(t, repo, nil, 0)

	assert.NoError(t, r.Execute(context.Background(), queue.Job{TaskID: 10}))
	repo.AssertExpectations(t)
}
