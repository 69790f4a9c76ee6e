package task

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"

	"bulkops/internal/observability"
	"bulkops/internal/storage"

	"github.com/sirupsen/logrus"
)

const cancelReason = "cancelled by user"

// StatusCache holds snapshots of terminal tasks keyed by token.
type StatusCache interface {
	Get(ctx context.Context, token string) (*Task, error)
	Set(ctx context.Context, t *Task) error
}

// Download is an open artifact stream. The caller closes Body.
type Download struct {
	Body        io.ReadCloser
	Size        int64
	Filename    string
	ContentType string
}

// Gate answers status, cancellation and download requests.
type Gate struct {
	repo  TaskRepositoryInterface
	cache StatusCache
	store storage.Storage
}

// NewGate accepts a nil cache.
func NewGate(repo TaskRepositoryInterface, cache StatusCache, store storage.Storage) *Gate {
	return &Gate{repo: repo, cache: cache, store: store}
}

func (g *Gate) load(ctx context.Context, token string) (*Task, error) {
	if g.cache != nil {
		cached, err := g.cache.Get(ctx, token)
		if err != nil {
			logrus.WithError(err).Warn("Failed to read task cache")
		}
		if cached != nil {
			observability.GlobalMetrics.CacheHit("task")
			return cached, nil
		}
		observability.GlobalMetrics.CacheMiss("task")
	}

	t, err := g.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if g.cache != nil && t.Status.Terminal() {
		if err := g.cache.Set(ctx, t); err != nil {
			logrus.WithError(err).Warn("Failed to set cache for task")
		}
	}
	return t, nil
}

func (g *Gate) GetStatus(ctx context.Context, token string) (*StatusView, error) {
	t, err := g.load(ctx, token)
	if err != nil {
		return nil, err
	}
	view := Project(t)
	return &view, nil
}

func (g *Gate) ListTasks(ctx context.Context, ownerID int) ([]StatusView, error) {
	tasks, err := g.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	views := make([]StatusView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, Project(t))
	}
	return views, nil
}

// Cancel flips a queued or processing task to cancelled. The worker notices
// at its next check. Imports lose their stored upload.
func (g *Gate) Cancel(ctx context.Context, token string) (*Ticket, error) {
	before, err := g.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	t, err := g.repo.Cancel(ctx, token, cancelReason)
	if err != nil {
		return nil, err
	}

	if before.Status != StatusCancelled {
		log := logrus.WithFields(logrus.Fields{"task_id": t.ID, "token": t.Token})
		log.Info("Task cancelled")
		if op, err := t.Operation(); err == nil {
			observability.GlobalMetrics.TaskCancelled(string(op))
		}

		if t.Type == TypeImport {
			if key := t.Parameters.String(ParamFilePath); key != "" {
				if err := g.store.Delete(ctx, key); err != nil {
					log.WithError(err).Warnf("Failed to delete upload %s", key)
				}
			}
		}
	}

	return &Ticket{TaskID: t.ID, Token: t.Token, Status: t.Status}, nil
}

// Download opens the artifact of a completed task. The stored file is left
// in place so the download can be repeated.
func (g *Gate) Download(ctx context.Context, token string) (*Download, error) {
	t, err := g.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusCompleted {
		return nil, &NotReadyError{Status: t.Status}
	}

	key := artifactKey(t)
	if key == "" {
		return nil, ErrArtifactMissing
	}

	// Completed tasks are cached, so the artifact may have been removed
	// since the record was read.
	exists, err := g.store.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrArtifactMissing
	}

	body, size, err := g.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, ErrArtifactMissing
		}
		return nil, err
	}

	name := artifactName(t)
	return &Download{Body: body, Size: size, Filename: name, ContentType: contentTypeOf(name)}, nil
}

// artifactTypes covers what operations produce; the system mime table is
// not guaranteed to know them.
var artifactTypes = map[string]string{
	".zip": "application/zip",
	".csv": "text/csv; charset=utf-8",
}

func contentTypeOf(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := artifactTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
