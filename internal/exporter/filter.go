// Package exporter renders per-student schedule documents and bundles them
// into one ZIP artifact.
package exporter

import (
	"errors"
	"fmt"
	"strings"

	"bulkops/internal/academic"
	"bulkops/internal/task"
)

var (
	ErrTermRequired  = errors.New("term filter is required")
	ErrScopeRequired = errors.New("either national_id or program and level are required")
)

// FilterFromPayload reads the filters stored with an export task. A
// national_id selects one student; otherwise program and level select a
// group.
func FilterFromPayload(params task.Payload) (academic.ScheduleFilter, error) {
	raw := map[string]string{}
	switch v := params[task.ParamFilters].(type) {
	case map[string]any:
		for k, val := range v {
			if val != nil {
				raw[k] = strings.TrimSpace(fmt.Sprint(val))
			}
		}
	case map[string]string:
		for k, val := range v {
			raw[k] = strings.TrimSpace(val)
		}
	}

	f := academic.ScheduleFilter{
		Term:       raw["term"],
		NationalID: raw["national_id"],
		Program:    raw["program"],
		Level:      raw["level"],
	}
	return f, validateFilter(f)
}

func validateFilter(f academic.ScheduleFilter) error {
	if f.Term == "" {
		return ErrTermRequired
	}
	if f.NationalID == "" && (f.Program == "" || f.Level == "") {
		return ErrScopeRequired
	}
	return nil
}
