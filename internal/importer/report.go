package importer

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
)

type Summary struct {
	TotalProcessed int `json:"total_processed"`
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Failed         int `json:"failed"`
}

// RowOutcome describes one failed row. Successful rows are only counted.
type RowOutcome struct {
	Row          int                 `json:"row"`
	Errors       map[string][]string `json:"errors"`
	OriginalData map[string]string   `json:"original_data"`
}

type Report struct {
	Summary Summary      `json:"summary"`
	Rows    []RowOutcome `json:"rows"`
}

func NewReport() *Report {
	return &Report{Rows: []RowOutcome{}}
}

func (r *Report) fail(row Row, errs map[string][]string) {
	r.Summary.TotalProcessed++
	r.Summary.Failed++
	r.Rows = append(r.Rows, RowOutcome{
		Row:          row.Number,
		Errors:       errs,
		OriginalData: row.Values,
	})
}

func (r *Report) succeed(action Action) {
	r.Summary.TotalProcessed++
	if action == ActionCreated {
		r.Summary.Created++
	} else {
		r.Summary.Updated++
	}
}

// WriteCSV writes the failed rows as row, errors, then the original columns
// in layout order, followed by any extra columns the upload carried.
func (r *Report) WriteCSV(w io.Writer, layout []string) error {
	cw := csv.NewWriter(w)

	columns := append(append([]string{}, layout...), r.extraColumns(layout)...)
	header := append([]string{"row", "errors"}, columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, outcome := range r.Rows {
		record := make([]string, 0, len(header))
		record = append(record, strconv.Itoa(outcome.Row), formatErrors(outcome.Errors))
		for _, col := range columns {
			record = append(record, outcome.OriginalData[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func (r *Report) extraColumns(layout []string) []string {
	known := make(map[string]bool, len(layout))
	for _, col := range layout {
		known[col] = true
	}
	var extra []string
	for _, outcome := range r.Rows {
		for col := range outcome.OriginalData {
			if !known[col] {
				known[col] = true
				extra = append(extra, col)
			}
		}
	}
	sort.Strings(extra)
	return extra
}

func formatErrors(errs map[string][]string) string {
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(errs[f], ", "))
	}
	return strings.Join(parts, "; ")
}
