package task

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"bulkops/internal/observability"
	"bulkops/internal/queue"
	"bulkops/internal/storage"

	"github.com/sirupsen/logrus"
)

// Parameter keys written by the dispatcher and read by operations.
const (
	ParamFilePath     = "file_path"
	ParamOriginalName = "original_name"
	ParamRequestedBy  = "requested_by"
	ParamFilters      = "filters"
)

var allowedUploadExt = map[string]bool{
	".csv":  true,
	".xlsx": true,
}

type ImportRequest struct {
	Subtype  string
	OwnerID  int
	Filename string
	Size     int64
	Body     io.Reader
}

type ExportRequest struct {
	Subtype string
	OwnerID int
	Filters map[string]string
}

// Dispatcher persists new tasks and hands them to the work queue.
type Dispatcher struct {
	repo           TaskRepositoryInterface
	publisher      queue.Publisher
	store          storage.Storage
	maxUploadBytes int64
}

func NewDispatcher(repo TaskRepositoryInterface, publisher queue.Publisher, store storage.Storage, maxUploadBytes int64) *Dispatcher {
	return &Dispatcher{
		repo:           repo,
		publisher:      publisher,
		store:          store,
		maxUploadBytes: maxUploadBytes,
	}
}

// Start commits a queued task before publishing it. If publishing fails the
// task is marked failed so it never sits queued forever.
func (d *Dispatcher) Start(ctx context.Context, op Operation, ownerID int, params Payload) (*Ticket, error) {
	taskType, subtype, err := op.Kind()
	if err != nil {
		return nil, err
	}

	t := &Task{
		Type:       taskType,
		Subtype:    subtype,
		Parameters: params,
		OwnerID:    ownerID,
	}
	if err := d.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	log := logrus.WithFields(logrus.Fields{"task_id": t.ID, "token": t.Token, "operation": op})
	observability.GlobalMetrics.TaskCreated(string(op))

	if err := d.publisher.Publish(ctx, queue.Job{TaskID: t.ID}); err != nil {
		log.WithError(err).Error("Failed to enqueue task")
		if ferr := d.repo.MarkFailed(context.WithoutCancel(ctx), t.ID, "failed to enqueue task", ""); ferr != nil {
			log.WithError(ferr).Error("Failed to mark unqueued task as failed")
		}
		observability.GlobalMetrics.TaskFailed(string(op), "enqueue_error")
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Info("Task queued")
	return &Ticket{TaskID: t.ID, Token: t.Token, Status: StatusQueued}, nil
}

// StartImport validates and stores the upload, then starts the import.
// Nothing is persisted when validation or storage fails.
func (d *Dispatcher) StartImport(ctx context.Context, req ImportRequest) (*Ticket, error) {
	op, err := ResolveOperation(TypeImport, req.Subtype)
	if err != nil {
		return nil, err
	}

	ext, err := d.validateUpload(req)
	if err != nil {
		return nil, err
	}

	key := storage.NewKey(storage.UploadsPrefix, ext)
	if err := d.store.Save(ctx, key, req.Body); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	ticket, err := d.Start(ctx, op, req.OwnerID, Payload{
		ParamFilePath:     key,
		ParamOriginalName: filepath.Base(req.Filename),
		ParamRequestedBy:  req.OwnerID,
	})
	if err != nil {
		// no worker will ever read the upload
		if derr := d.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			logrus.WithError(derr).Warnf("Failed to delete upload %s", key)
		}
		return nil, err
	}
	return ticket, nil
}

func (d *Dispatcher) validateUpload(req ImportRequest) (string, error) {
	if req.Body == nil || req.Filename == "" {
		return "", fmt.Errorf("%w: a file is required", ErrInvalidUpload)
	}
	if req.Size <= 0 {
		return "", fmt.Errorf("%w: the file is empty", ErrInvalidUpload)
	}
	if d.maxUploadBytes > 0 && req.Size > d.maxUploadBytes {
		return "", fmt.Errorf("%w: the file exceeds %d bytes", ErrInvalidUpload, d.maxUploadBytes)
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !allowedUploadExt[ext] {
		return "", fmt.Errorf("%w: only .csv and .xlsx files are accepted", ErrInvalidUpload)
	}
	return ext, nil
}

// StartExport passes the filters through. They are validated by the worker
// so that a bad filter set shows up as a failed task.
func (d *Dispatcher) StartExport(ctx context.Context, req ExportRequest) (*Ticket, error) {
	op, err := ResolveOperation(TypeExport, req.Subtype)
	if err != nil {
		return nil, err
	}

	filters := map[string]any{}
	for k, v := range req.Filters {
		filters[k] = v
	}

	return d.Start(ctx, op, req.OwnerID, Payload{
		ParamFilters:     filters,
		ParamRequestedBy: req.OwnerID,
	})
}
