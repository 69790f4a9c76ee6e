// Package storage is the durable blob store for uploaded inputs and
// generated artifacts. Objects are addressed by slash-separated keys
// relative to the store root. Writes are staged and moved into place so a
// key is either absent or complete.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"bulkops/internal/config"

	"github.com/google/uuid"
)

var (
	ErrNotExist   = errors.New("storage object does not exist")
	ErrInvalidKey = errors.New("invalid storage key")
)

const (
	UploadsPrefix = "uploads"
	ExportsPrefix = "exports"
	ReportsPrefix = "reports"
)

type Storage interface {
	// Save streams r into key.
	Save(ctx context.Context, key string, r io.Reader) error
	// Publish moves a finished local file into key. The local file is
	// consumed on success.
	Publish(ctx context.Context, localPath, key string) error
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error
	// StagingDir is a local directory for building artifacts before Publish.
	StagingDir() string
	Close() error
}

// NewKey returns a collision-resistant key under prefix.
func NewKey(prefix, ext string) string {
	return path.Join(prefix, uuid.NewString()+ext)
}

func New(cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.Root, cfg.StagingDir)
	case "sftp":
		return DialSFTP(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
