package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadTable reads a .csv or .xlsx upload and splits off the header row.
// An empty file yields a nil header and no rows.
func ReadTable(r io.Reader, ext string) ([]string, [][]string, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(ext) {
	case ".csv":
		records, err = readCSV(r)
	case ".xlsx":
		records, err = readXLSX(r)
	default:
		return nil, nil, fmt.Errorf("unsupported file type %q", ext)
	}
	if err != nil {
		return nil, nil, err
	}

	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

func readCSV(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("malformed csv at line %d: %w", perr.Line, perr.Err)
		}
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

// readXLSX reads the first sheet only.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// checkHeader makes sure the file has at least the layout's columns.
func checkHeader(header, layout []string) error {
	if len(header) == 0 {
		return nil
	}
	if len(header) < len(layout) {
		return fmt.Errorf("expected %d columns (%s), file header has %d",
			len(layout), strings.Join(layout, ", "), len(header))
	}
	return nil
}
