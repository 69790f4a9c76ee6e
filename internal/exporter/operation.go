package exporter

import (
	"context"
	"fmt"
	"os"

	"bulkops/internal/observability"
	"bulkops/internal/storage"
	"bulkops/internal/task"

	"github.com/sirupsen/logrus"
)

const (
	progressSelected = 5
	progressBuilt    = 90
	progressPublish  = 95
)

// Operation exports the schedules selected by a task's filters as one ZIP.
type Operation struct {
	op       task.Operation
	store    storage.Storage
	packager *Packager
}

func NewOperation(op task.Operation, store storage.Storage, packager *Packager) *Operation {
	return &Operation{op: op, store: store, packager: packager}
}

func (o *Operation) Run(ctx context.Context, t *task.Task, h task.Handle) (task.Outcome, error) {
	filter, err := FilterFromPayload(t.Parameters)
	if err != nil {
		return task.Outcome{}, err
	}

	log := logrus.WithFields(logrus.Fields{"task_id": t.ID, "token": t.Token, "operation": o.op})

	students, err := o.packager.Candidates(ctx, filter)
	if err != nil {
		return task.Outcome{}, err
	}
	if err := h.Advance(ctx, progressSelected, fmt.Sprintf("Generating %d schedules", len(students))); err != nil {
		return task.Outcome{}, err
	}

	bundle, err := o.packager.Build(ctx, o.store.StagingDir(), filter.Term, students,
		func(ctx context.Context, done, total int) error {
			if err := h.CheckCancelled(ctx); err != nil {
				return err
			}
			progress := task.Interpolate(progressSelected, progressBuilt, done, total)
			return h.Advance(ctx, progress, fmt.Sprintf("Generated %d of %d schedules", done, total))
		})
	if err != nil {
		return task.Outcome{}, err
	}

	// Nothing may be published for a task that was cancelled meanwhile.
	if err := h.CheckCancelled(ctx); err != nil {
		os.Remove(bundle.Path)
		return task.Outcome{}, err
	}
	if err := h.Advance(ctx, progressPublish, "Publishing archive"); err != nil {
		os.Remove(bundle.Path)
		return task.Outcome{}, err
	}

	key := storage.NewKey(storage.ExportsPrefix, ".zip")
	if err := o.store.Publish(ctx, bundle.Path, key); err != nil {
		os.Remove(bundle.Path)
		return task.Outcome{}, fmt.Errorf("failed to publish archive: %w", err)
	}

	observability.GlobalMetrics.ExportDocuments(string(o.op), bundle.Produced, bundle.Skipped)
	log.WithFields(logrus.Fields{
		"candidates": bundle.TotalCandidates,
		"produced":   bundle.Produced,
		"skipped":    bundle.Skipped,
	}).Info("Export finished")

	return task.Outcome{
		Result: task.Payload{
			task.ResultFilePath: key,
			task.ResultFilename: archiveName(filter.Term),
			"total_candidates":  bundle.TotalCandidates,
			"produced":          bundle.Produced,
			"skipped":           bundle.Skipped,
		},
		Message: fmt.Sprintf("Exported %d of %d schedules (%d skipped)",
			bundle.Produced, bundle.TotalCandidates, bundle.Skipped),
		Artifacts: []string{key},
	}, nil
}

func archiveName(term string) string {
	name := unsafeName.ReplaceAllString(term, "_")
	if name == "" {
		name = "export"
	}
	return "schedules_" + name + ".zip"
}
