package testutil

import (
	"context"

	"bulkops/internal/task"

	"github.com/stretchr/testify/mock"
)

// MockTaskRepository is a testify mock of task.TaskRepositoryInterface.
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) Create(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id int64) (*task.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskRepository) GetByToken(ctx context.Context, token string) (*task.Task, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskRepository) GetByOwner(ctx context.Context, ownerID int) ([]*task.Task, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskRepository) GetStatus(ctx context.Context, id int64) (task.Status, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(task.Status), args.Error(1)
}

func (m *MockTaskRepository) MarkProcessing(ctx context.Context, id int64, message string) error {
	args := m.Called(ctx, id, message)
	return args.Error(0)
}

func (m *MockTaskRepository) UpdateProgress(ctx context.Context, id int64, progress int, message string) error {
	args := m.Called(ctx, id, progress, message)
	return args.Error(0)
}

func (m *MockTaskRepository) MarkCompleted(ctx context.Context, id int64, result task.Payload, message string) error {
	args := m.Called(ctx, id, result, message)
	return args.Error(0)
}

func (m *MockTaskRepository) MarkFailed(ctx context.Context, id int64, errorMessage, message string) error {
	args := m.Called(ctx, id, errorMessage, message)
	return args.Error(0)
}

func (m *MockTaskRepository) Cancel(ctx context.Context, token, reason string) (*task.Task, error) {
	args := m.Called(ctx, token, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

var _ task.TaskRepositoryInterface = (*MockTaskRepository)(nil)
