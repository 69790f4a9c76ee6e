// Package importer turns uploaded spreadsheets into academic records. Each
// row is validated and applied in its own transaction; a bad row lands in
// the report instead of aborting the batch.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const generalErrorKey = "general"

const unexpectedRowError = "unexpected error while processing row"

type Action int

const (
	ActionCreated Action = iota + 1
	ActionUpdated
)

// Row is one data line addressed by layout column name.
type Row struct {
	Number int
	Values map[string]string
}

func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// RowHandler validates and persists one row. Apply owns the row's
// transaction and returns a *ValidationError for bad input.
type RowHandler interface {
	Layout() []string
	Apply(ctx context.Context, row Row) (Action, error)
}

// Checkpoint is called every few rows with the number of rows handled so
// far. A non-nil error stops the run.
type Checkpoint func(ctx context.Context, done, total int) error

type Engine struct {
	handler    RowHandler
	checkEvery int
	checkpoint Checkpoint
	header     []string
}

func NewEngine(handler RowHandler, checkEvery int, checkpoint Checkpoint) *Engine {
	if checkEvery <= 0 {
		checkEvery = 10
	}
	return &Engine{handler: handler, checkEvery: checkEvery, checkpoint: checkpoint}
}

// WithHeader names cells beyond the layout after the file's own header, so
// a failed row keeps every cell it was uploaded with.
func (e *Engine) WithHeader(header []string) *Engine {
	e.header = header
	return e
}

// Run applies rows in order. The row number shown to users is index + 2:
// one for the header, one for 1-based counting.
func (e *Engine) Run(ctx context.Context, rows [][]string) (*Report, error) {
	report := NewReport()
	if len(rows) == 0 {
		return report, nil
	}

	layout := e.handler.Layout()
	extra := extraNames(layout, e.header, widest(rows))
	total := len(rows)

	for i, cells := range rows {
		if i > 0 && i%e.checkEvery == 0 && e.checkpoint != nil {
			if err := e.checkpoint(ctx, i, total); err != nil {
				return report, err
			}
		}

		if blank(cells) {
			continue
		}

		row := Row{Number: i + 2, Values: mapCells(layout, extra, cells)}
		action, err := e.handler.Apply(ctx, row)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}

			var verr *ValidationError
			if errors.As(err, &verr) {
				report.fail(row, verr.Fields)
				continue
			}

			logrus.WithError(err).WithField("row", row.Number).Error("Unexpected error while importing row")
			report.fail(row, map[string][]string{generalErrorKey: {unexpectedRowError}})
			continue
		}

		report.succeed(action)
	}

	return report, nil
}

// mapCells keys cells by layout column. Cells past the layout are kept
// under their extra name.
func mapCells(layout, extra []string, cells []string) map[string]string {
	values := make(map[string]string, len(layout)+len(extra))
	for i, col := range layout {
		if i < len(cells) {
			values[col] = cells[i]
		} else {
			values[col] = ""
		}
	}
	for i, name := range extra {
		if idx := len(layout) + i; idx < len(cells) && cells[idx] != "" {
			values[name] = cells[idx]
		}
	}
	return values
}

// extraNames names the columns from len(layout) up to width, preferring the
// file's header and falling back to column_<n> (1-based) for blank or
// clashing names.
func extraNames(layout, header []string, width int) []string {
	if width <= len(layout) {
		return nil
	}
	used := make(map[string]bool, width)
	for _, col := range layout {
		used[col] = true
	}

	names := make([]string, 0, width-len(layout))
	for i := len(layout); i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" || used[name] {
			name = fmt.Sprintf("column_%d", i+1)
		}
		used[name] = true
		names = append(names, name)
	}
	return names
}

func widest(rows [][]string) int {
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
