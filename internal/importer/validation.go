package importer

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ValidationError carries field-level messages for one row. It fails the
// row, never the batch.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// OrNil returns e only when it holds messages, so callers can write
// `return v.OrNil()` without producing a typed nil error.
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e.Fields[f], ", ")))
	}
	return strings.Join(parts, "; ")
}

var nationalIDPattern = regexp.MustCompile(`^\d{14}$`)

func (e *ValidationError) required(row Row, field string) string {
	v := row.Get(field)
	if v == "" {
		e.Add(field, "is required")
	}
	return v
}

func (e *ValidationError) nationalID(row Row, field string) string {
	v := e.required(row, field)
	if v != "" && !nationalIDPattern.MatchString(v) {
		e.Add(field, "must be exactly 14 digits")
	}
	return v
}

func (e *ValidationError) email(row Row, field string) string {
	v := row.Get(field)
	if v == "" {
		return ""
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		e.Add(field, "is not a valid email address")
	}
	return v
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02", "02-01-2006"}

func (e *ValidationError) date(row Row, field string) *time.Time {
	v := row.Get(field)
	if v == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, v); err == nil {
			return &d
		}
	}
	e.Add(field, "must be a date like 2006-01-31")
	return nil
}
