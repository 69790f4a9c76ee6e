package importer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"bulkops/internal/observability"
	"bulkops/internal/storage"
	"bulkops/internal/task"

	"github.com/sirupsen/logrus"
)

// Progress window of the row loop. Reading the file owns 0-10 and writing
// the report owns 90-100.
const (
	progressRowsStart = 10
	progressRowsEnd   = 90
	progressReport    = 95
)

// Operation runs one import task end to end: read the stored upload, apply
// every row and publish the error report.
type Operation struct {
	op         task.Operation
	store      storage.Storage
	handler    RowHandler
	checkEvery int
}

func NewOperation(op task.Operation, store storage.Storage, handler RowHandler, checkEvery int) *Operation {
	return &Operation{op: op, store: store, handler: handler, checkEvery: checkEvery}
}

func (o *Operation) Run(ctx context.Context, t *task.Task, h task.Handle) (task.Outcome, error) {
	key := t.Parameters.String(task.ParamFilePath)
	if key == "" {
		return task.Outcome{}, fmt.Errorf("task has no %s parameter", task.ParamFilePath)
	}

	log := logrus.WithFields(logrus.Fields{"task_id": t.ID, "token": t.Token, "operation": o.op})

	header, rows, err := o.read(ctx, key)
	if err != nil {
		return task.Outcome{}, err
	}

	layout := o.handler.Layout()
	if err := checkHeader(header, layout); err != nil {
		return task.Outcome{}, err
	}

	if err := h.Advance(ctx, progressRowsStart, fmt.Sprintf("Processing %d rows", len(rows))); err != nil {
		return task.Outcome{}, err
	}

	engine := NewEngine(o.handler, o.checkEvery, func(ctx context.Context, done, total int) error {
		if err := h.CheckCancelled(ctx); err != nil {
			return err
		}
		progress := task.Interpolate(progressRowsStart, progressRowsEnd, done, total)
		return h.Advance(ctx, progress, fmt.Sprintf("Processed %d of %d rows", done, total))
	}).WithHeader(header)

	report, err := engine.Run(ctx, rows)
	if err != nil {
		return task.Outcome{}, err
	}

	if err := h.CheckCancelled(ctx); err != nil {
		return task.Outcome{}, err
	}
	if err := h.Advance(ctx, progressReport, "Writing report"); err != nil {
		return task.Outcome{}, err
	}

	reportKey, err := o.writeReport(ctx, report, layout)
	if err != nil {
		return task.Outcome{}, err
	}

	s := report.Summary
	observability.GlobalMetrics.ImportRows(string(o.op), s.Created, s.Updated, s.Failed)
	log.WithFields(logrus.Fields{
		"created": s.Created,
		"updated": s.Updated,
		"failed":  s.Failed,
	}).Info("Import finished")

	return task.Outcome{
		Result: task.Payload{
			"summary":                 s,
			"rows":                    report.Rows,
			task.ResultReportPath:     reportKey,
			task.ResultReportFilename: reportName(t.Parameters.String(task.ParamOriginalName)),
		},
		Message: fmt.Sprintf("Imported %d rows: %d created, %d updated, %d failed",
			s.TotalProcessed, s.Created, s.Updated, s.Failed),
		Artifacts: []string{reportKey},
	}, nil
}

func (o *Operation) read(ctx context.Context, key string) ([]string, [][]string, error) {
	rc, _, err := o.store.Open(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open upload %s: %w", key, err)
	}
	defer rc.Close()

	header, rows, err := ReadTable(rc, path.Ext(key))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return header, rows, nil
}

func (o *Operation) writeReport(ctx context.Context, report *Report, layout []string) (string, error) {
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, layout); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	key := storage.NewKey(storage.ReportsPrefix, ".csv")
	if err := o.store.Save(ctx, key, &buf); err != nil {
		return "", fmt.Errorf("failed to store report: %w", err)
	}
	return key, nil
}

func reportName(original string) string {
	base := strings.TrimSuffix(path.Base(original), path.Ext(original))
	if base == "" || base == "." || base == "/" {
		base = "import"
	}
	return base + "_report.csv"
}
