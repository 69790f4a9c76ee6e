package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bulkops/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), "")
	require.NoError(t, err)
	return l
}

func TestLocal_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	key := NewKey(UploadsPrefix, ".csv")
	require.NoError(t, l.Save(ctx, key, strings.NewReader("a,b\n1,2\n")))

	ok, err := l.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, size, err := l.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
	assert.Equal(t, int64(len(data)), size)

	require.NoError(t, l.Delete(ctx, key))
	ok, err = l.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting twice is fine
	assert.NoError(t, l.Delete(ctx, key))
}

func TestLocal_OpenMissing(t *testing.T) {
	l := newTestLocal(t)

	_, _, err := l.Open(context.Background(), "exports/missing.zip")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestLocal_PublishMovesStagedFile(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	tmp, err := os.CreateTemp(l.StagingDir(), "bundle-*.zip")
	require.NoError(t, err)
	_, err = tmp.WriteString("zipdata")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	key := NewKey(ExportsPrefix, ".zip")
	require.NoError(t, l.Publish(ctx, tmp.Name(), key))

	_, err = os.Stat(tmp.Name())
	assert.True(t, os.IsNotExist(err), "staged file should be consumed")

	ok, err := l.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocal_SaveLeavesNothingOnCancelledContext(t *testing.T) {
	l := newTestLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	key := "uploads/cancelled.csv"
	err := l.Save(ctx, key, strings.NewReader("data"))
	require.Error(t, err)

	ok, err := l.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := os.ReadDir(l.StagingDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{key: "uploads/a.csv"},
		{key: "exports/x/../y.zip"},
		{key: "", wantErr: true},
		{key: "/etc/passwd", wantErr: true},
		{key: "../secret", wantErr: true},
		{key: "uploads/../../secret", wantErr: true},
		{key: `uploads\a.csv`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := cleanKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(&config.StorageConfig{Driver: "s3"})
	assert.Error(t, err)
}

func TestNewKey_IsUnique(t *testing.T) {
	a := NewKey(ReportsPrefix, ".csv")
	b := NewKey(ReportsPrefix, ".csv")
	assert.NotEqual(t, a, b)
	assert.Equal(t, "reports", filepath.Dir(a))
	assert.Equal(t, ".csv", filepath.Ext(a))
}
