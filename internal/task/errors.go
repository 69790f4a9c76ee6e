package task

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidState      = errors.New("cannot cancel a completed or failed operation")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrArtifactMissing   = errors.New("result file not found")
	ErrCancelled         = errors.New("operation was cancelled")
	ErrInvalidUpload     = errors.New("invalid upload")
	ErrUnknownOperation  = errors.New("unknown operation")
)

// NotReadyError is returned when a download is requested before the task
// completed.
type NotReadyError struct {
	Status Status
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("operation is not completed (status: %s)", e.Status)
}
