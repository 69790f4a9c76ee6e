package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestProject_Narration(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want string
	}{
		{"queued", Task{Status: StatusQueued}, "Waiting in queue"},
		{"processing", Task{Status: StatusProcessing, Progress: 40}, "Processing (40%)"},
		{"failed", Task{Status: StatusFailed, Error: strPtr("term filter is required")}, "Failed: term filter is required"},
		{"cancelled", Task{Status: StatusCancelled}, "Cancelled"},
		{"stored message wins", Task{Status: StatusProcessing, Message: strPtr("Processed 10 of 40 rows")}, "Processed 10 of 40 rows"},
		{"empty stored message", Task{Status: StatusCompleted, Message: strPtr("")}, "Completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Project(&tt.task).Message)
		})
	}
}

func TestProject_DownloadURL(t *testing.T) {
	export := &Task{
		Token:  "abc",
		Type:   TypeExport,
		Status: StatusCompleted,
		Result: Payload{ResultFilePath: "exports/x.zip"},
	}
	view := Project(export)
	require.NotNil(t, view.DownloadURL)
	assert.Equal(t, "/api/v1/tasks/abc/download", *view.DownloadURL)

	imp := &Task{Token: "def", Type: TypeImport, Status: StatusCompleted, Result: Payload{ResultReportPath: "reports/r.csv"}}
	require.NotNil(t, Project(imp).DownloadURL)

	running := &Task{Token: "abc", Type: TypeExport, Status: StatusProcessing}
	assert.Nil(t, Project(running).DownloadURL)

	noArtifact := &Task{Token: "abc", Type: TypeExport, Status: StatusCompleted, Result: Payload{}}
	assert.Nil(t, Project(noArtifact).DownloadURL)
}

func TestArtifactName(t *testing.T) {
	withName := &Task{Type: TypeImport, Result: Payload{ResultReportPath: "reports/1.csv", ResultReportFilename: "students_report.csv"}}
	assert.Equal(t, "students_report.csv", artifactName(withName))

	fallback := &Task{Type: TypeExport, Result: Payload{ResultFilePath: "exports/2.zip"}}
	assert.Equal(t, "2.zip", artifactName(fallback))
}
