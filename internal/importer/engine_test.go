package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler marks rows whose first column is "bad" invalid, "boom" as an
// unexpected failure, and known ids as updates.
type fakeHandler struct {
	seen    map[string]bool
	applied []int
}

func newFakeHandler(existing ...string) *fakeHandler {
	h := &fakeHandler{seen: map[string]bool{}}
	for _, id := range existing {
		h.seen[id] = true
	}
	return h
}

func (h *fakeHandler) Layout() []string {
	return []string{"id", "name"}
}

func (h *fakeHandler) Apply(ctx context.Context, row Row) (Action, error) {
	h.applied = append(h.applied, row.Number)

	switch row.Get("id") {
	case "bad":
		v := &ValidationError{}
		v.Add("id", "is invalid")
		return 0, v
	case "boom":
		return 0, errors.New("connection reset by peer")
	}

	if h.seen[row.Get("id")] {
		return ActionUpdated, nil
	}
	h.seen[row.Get("id")] = true
	return ActionCreated, nil
}

func TestEngine_EmptyInput(t *testing.T) {
	report, err := NewEngine(newFakeHandler(), 10, nil).Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, Summary{}, report.Summary)
	assert.Empty(t, report.Rows)
}

func TestEngine_OneBadRowDoesNotAbort(t *testing.T) {
	rows := [][]string{
		{"1", "Alice"},
		{"bad", "Bob"},
		{"3", "Carol"},
	}

	report, err := NewEngine(newFakeHandler(), 10, nil).Run(context.Background(), rows)

	require.NoError(t, err)
	assert.Equal(t, Summary{TotalProcessed: 3, Created: 2, Updated: 0, Failed: 1}, report.Summary)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, 3, report.Rows[0].Row)
	assert.Equal(t, []string{"is invalid"}, report.Rows[0].Errors["id"])
	assert.Equal(t, "Bob", report.Rows[0].OriginalData["name"])
}

func TestEngine_CreatedAndUpdated(t *testing.T) {
	rows := [][]string{{"1", "Alice"}, {"2", "Bob"}}

	report, err := NewEngine(newFakeHandler("2"), 10, nil).Run(context.Background(), rows)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Created)
	assert.Equal(t, 1, report.Summary.Updated)
}

func TestEngine_UnexpectedErrorUsesGeneralBucket(t *testing.T) {
	report, err := NewEngine(newFakeHandler(), 10, nil).Run(context.Background(), [][]string{{"boom", "x"}})

	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, map[string][]string{"general": {"unexpected error while processing row"}}, report.Rows[0].Errors)
}

func TestEngine_SkipsBlankRows(t *testing.T) {
	rows := [][]string{
		{"1", "Alice"},
		{"", "  "},
		{},
		{"bad", "x"},
	}
	h := newFakeHandler()

	report, err := NewEngine(h, 10, nil).Run(context.Background(), rows)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.TotalProcessed)
	assert.Equal(t, []int{2, 5}, h.applied)
	assert.Equal(t, 5, report.Rows[0].Row)
}

func TestEngine_ShortRowsArePadded(t *testing.T) {
	rows := [][]string{{"bad"}}

	report, err := NewEngine(newFakeHandler(), 10, nil).Run(context.Background(), rows)

	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, map[string]string{"id": "bad", "name": ""}, report.Rows[0].OriginalData)
}

func TestEngine_KeepsCellsBeyondLayout(t *testing.T) {
	rows := [][]string{
		{"bad", "Bob", "note", "", "x"},
		{"1", "Alice"},
	}
	header := []string{"id", "name", "Remarks", "name", ""}

	report, err := NewEngine(newFakeHandler(), 10, nil).WithHeader(header).Run(context.Background(), rows)

	require.NoError(t, err)
	assert.Equal(t, Summary{TotalProcessed: 2, Created: 1, Failed: 1}, report.Summary)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, map[string]string{
		"id":       "bad",
		"name":     "Bob",
		"Remarks":  "note",
		"column_5": "x",
	}, report.Rows[0].OriginalData)
}

func TestEngine_ExtraCellsWithoutHeader(t *testing.T) {
	report, err := NewEngine(newFakeHandler(), 10, nil).Run(context.Background(), [][]string{{"bad", "Bob", "extra"}})

	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, "extra", report.Rows[0].OriginalData["column_3"])
}

func TestEngine_CheckpointEveryN(t *testing.T) {
	rows := make([][]string, 7)
	for i := range rows {
		rows[i] = []string{"x", "y"}
	}

	var calls []int
	checkpoint := func(ctx context.Context, done, total int) error {
		assert.Equal(t, 7, total)
		calls = append(calls, done)
		return nil
	}

	_, err := NewEngine(newFakeHandler(), 3, checkpoint).Run(context.Background(), rows)

	require.NoError(t, err)
	assert.Equal(t, []int{3, 6}, calls)
}

func TestEngine_CheckpointErrorStopsRun(t *testing.T) {
	rows := [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}, {"4", "d"}}
	stop := errors.New("stop")
	h := newFakeHandler()

	report, err := NewEngine(h, 2, func(context.Context, int, int) error { return stop }).
		Run(context.Background(), rows)

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, report.Summary.Created)
	assert.Equal(t, []int{2, 3}, h.applied)
}

type ctxCancellingHandler struct {
	cancel context.CancelFunc
}

func (h *ctxCancellingHandler) Layout() []string { return []string{"id"} }

func (h *ctxCancellingHandler) Apply(ctx context.Context, row Row) (Action, error) {
	h.cancel()
	return 0, ctx.Err()
}

func TestEngine_ContextCancelledDuringApply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	report, err := NewEngine(&ctxCancellingHandler{cancel: cancel}, 10, nil).
		Run(ctx, [][]string{{"1"}, {"2"}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Summary.TotalProcessed)
}
