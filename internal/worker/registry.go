package worker

import (
	"context"

	"bulkops/internal/academic"
	"bulkops/internal/exporter"
	"bulkops/internal/importer"
	"bulkops/internal/storage"
	"bulkops/internal/task"

	"gorm.io/gorm"
)

// Handler executes one kind of operation. Returning nil completes the task
// with the outcome; task.ErrCancelled stops it silently; any other error
// fails it.
type Handler interface {
	Run(ctx context.Context, t *task.Task, h task.Handle) (task.Outcome, error)
}

type Registry map[task.Operation]Handler

// NewRegistry wires every known operation to its implementation.
func NewRegistry(gdb *gorm.DB, store storage.Storage, checkEvery int) Registry {
	packager := exporter.NewPackager(academic.NewRepository(gdb), exporter.NewPDFRenderer())

	return Registry{
		task.OpStudentImport: importer.NewOperation(
			task.OpStudentImport, store, importer.NewStudentHandler(gdb), checkEvery),
		task.OpEnrollmentImport: importer.NewOperation(
			task.OpEnrollmentImport, store, importer.NewEnrollmentHandler(gdb), checkEvery),
		task.OpScheduleExport: exporter.NewOperation(
			task.OpScheduleExport, store, packager),
	}
}
