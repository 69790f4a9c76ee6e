package task

import (
	"fmt"
	"path"
	"time"
)

// StatusView is the client-facing projection of a task.
type StatusView struct {
	TaskID      int64     `json:"task_id"`
	Token       string    `json:"token"`
	Type        Type      `json:"type"`
	Subtype     string    `json:"subtype"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	Error       *string   `json:"error"`
	Result      Payload   `json:"result"`
	DownloadURL *string   `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func Project(t *Task) StatusView {
	view := StatusView{
		TaskID:    t.ID,
		Token:     t.Token,
		Type:      t.Type,
		Subtype:   t.Subtype,
		Status:    t.Status,
		Progress:  t.Progress,
		Error:     t.Error,
		Result:    t.Result,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}

	if t.Message != nil && *t.Message != "" {
		view.Message = *t.Message
	} else {
		view.Message = narrate(t)
	}

	if t.Status == StatusCompleted && artifactKey(t) != "" {
		url := DownloadPath(t.Token)
		view.DownloadURL = &url
	}
	return view
}

func DownloadPath(token string) string {
	return fmt.Sprintf("/api/v1/tasks/%s/download", token)
}

func narrate(t *Task) string {
	switch t.Status {
	case StatusQueued:
		return "Waiting in queue"
	case StatusProcessing:
		return fmt.Sprintf("Processing (%d%%)", t.Progress)
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		if t.Error != nil {
			return "Failed: " + *t.Error
		}
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(t.Status)
}

// Result keys naming the downloadable artifact of each task type.
const (
	ResultFilePath       = "file_path"
	ResultFilename       = "filename"
	ResultReportPath     = "report_path"
	ResultReportFilename = "report_filename"
)

// artifactKey returns the storage key of the task's downloadable file.
func artifactKey(t *Task) string {
	switch t.Type {
	case TypeExport:
		return t.Result.String(ResultFilePath)
	case TypeImport:
		return t.Result.String(ResultReportPath)
	}
	return ""
}

func artifactName(t *Task) string {
	var name string
	switch t.Type {
	case TypeExport:
		name = t.Result.String(ResultFilename)
	case TypeImport:
		name = t.Result.String(ResultReportFilename)
	}
	if name == "" {
		name = path.Base(artifactKey(t))
	}
	return name
}
