package task_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bulkops/internal/queue"
	"bulkops/internal/storage"
	"bulkops/internal/task"
	"bulkops/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, job queue.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockPublisher) Close() error { return nil }

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir(), "")
	require.NoError(t, err)
	return store
}

// createAssigns mimics the repository filling in identity on insert.
func createAssigns(id int64, token string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		tk := args.Get(1).(*task.Task)
		tk.ID = id
		tk.Token = token
		tk.Status = task.StatusQueued
	}
}

func TestDispatcher_StartCommitsBeforePublishing(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	pub := new(MockPublisher)
	d := task.NewDispatcher(repo, pub, newStore(t), 1024)

	created := false
	repo.On("Create", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
		return tk.Type == task.TypeExport && tk.Subtype == "schedules" && tk.OwnerID == 9
	})).Run(func(args mock.Arguments) {
		createAssigns(11, "tok-11")(args)
		created = true
	}).Return(nil)
	pub.On("Publish", mock.Anything, queue.Job{TaskID: 11}).Run(func(mock.Arguments) {
		assert.True(t, created, "published before the task row existed")
	}).Return(nil)

	ticket, err := d.Start(context.Background(), task.OpScheduleExport, 9, task.Payload{})

	require.NoError(t, err)
	assert.Equal(t, &task.Ticket{TaskID: 11, Token: "tok-11", Status: task.StatusQueued}, ticket)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestDispatcher_PublishFailureMarksTaskFailed(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	pub := new(MockPublisher)
	d := task.NewDispatcher(repo, pub, newStore(t), 1024)

	repo.On("Create", mock.Anything, mock.Anything).Run(createAssigns(12, "tok-12")).Return(nil)
	pub.On("Publish", mock.Anything, queue.Job{TaskID: 12}).Return(errors.New("channel closed"))
	repo.On("MarkFailed", mock.Anything, int64(12), "failed to enqueue task", "").Return(nil)

	ticket, err := d.Start(context.Background(), task.OpScheduleExport, 1, task.Payload{})

	assert.Nil(t, ticket)
	assert.ErrorContains(t, err, "channel closed")
	repo.AssertExpectations(t)
}

func TestDispatcher_StartImportStoresUpload(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	pub := new(MockPublisher)
	store := newStore(t)
	d := task.NewDispatcher(repo, pub, store, 1024)

	var params task.Payload
	repo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		params = args.Get(1).(*task.Task).Parameters
		createAssigns(13, "tok-13")(args)
	}).Return(nil)
	pub.On("Publish", mock.Anything, queue.Job{TaskID: 13}).Return(nil)

	content := "name,national_id\nA,1\n"
	_, err := d.StartImport(context.Background(), task.ImportRequest{
		Subtype:  "students",
		OwnerID:  5,
		Filename: "Roster.CSV",
		Size:     int64(len(content)),
		Body:     strings.NewReader(content),
	})
	require.NoError(t, err)

	key := params.String(task.ParamFilePath)
	assert.True(t, strings.HasPrefix(key, "uploads/"))
	assert.True(t, strings.HasSuffix(key, ".csv"))
	assert.Equal(t, "Roster.CSV", params.String(task.ParamOriginalName))
	assert.Equal(t, 5, params.Int(task.ParamRequestedBy))

	exists, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDispatcher_StartImportRejectsBadUploads(t *testing.T) {
	tests := []struct {
		name string
		req  task.ImportRequest
	}{
		{"no file", task.ImportRequest{Subtype: "students"}},
		{"empty", task.ImportRequest{Subtype: "students", Filename: "a.csv", Size: 0, Body: strings.NewReader("")}},
		{"too large", task.ImportRequest{Subtype: "students", Filename: "a.csv", Size: 4096, Body: strings.NewReader("x")}},
		{"wrong extension", task.ImportRequest{Subtype: "students", Filename: "a.pdf", Size: 1, Body: strings.NewReader("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(testutil.MockTaskRepository)
			d := task.NewDispatcher(repo, new(MockPublisher), newStore(t), 1024)

			_, err := d.StartImport(context.Background(), tt.req)

			assert.ErrorIs(t, err, task.ErrInvalidUpload)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestDispatcher_UnknownSubtype(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	d := task.NewDispatcher(repo, new(MockPublisher), newStore(t), 1024)

	_, err := d.StartImport(context.Background(), task.ImportRequest{Subtype: "grades"})
	assert.ErrorIs(t, err, task.ErrUnknownOperation)

	_, err = d.StartExport(context.Background(), task.ExportRequest{Subtype: "students"})
	assert.ErrorIs(t, err, task.ErrUnknownOperation)

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDispatcher_StartImportDeletesUploadWhenStartFails(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	store := newStore(t)
	d := task.NewDispatcher(repo, new(MockPublisher), store, 1024)

	var key string
	repo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		key = args.Get(1).(*task.Task).Parameters.String(task.ParamFilePath)
	}).Return(errors.New("db down"))

	_, err := d.StartImport(context.Background(), task.ImportRequest{
		Subtype: "enrollments", Filename: "e.csv", Size: 1, Body: strings.NewReader("x"),
	})
	require.Error(t, err)

	exists, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDispatcher_StartExportKeepsFilters(t *testing.T) {
	repo := new(testutil.MockTaskRepository)
	pub := new(MockPublisher)
	d := task.NewDispatcher(repo, pub, newStore(t), 1024)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
		filters, ok := tk.Parameters[task.ParamFilters].(map[string]any)
		return ok && filters["term"] == "2024-fall" && filters["national_id"] == "30001011234577"
	})).Run(createAssigns(14, "tok-14")).Return(nil)
	pub.On("Publish", mock.Anything, queue.Job{TaskID: 14}).Return(nil)

	_, err := d.StartExport(context.Background(), task.ExportRequest{
		Subtype: "schedules",
		Filters: map[string]string{"term": "2024-fall", "national_id": "30001011234577"},
	})

	require.NoError(t, err)
	repo.AssertExpectations(t)
}
