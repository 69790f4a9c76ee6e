package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bulkops/internal/task"

	"github.com/go-redis/redis/v8"
)

const TaskCacheTTL = 1 * time.Hour

// TaskCache keeps snapshots of finished tasks. Queued and processing tasks
// are never stored, so polling always sees live progress.
type TaskCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTaskCache(client *redis.Client) *TaskCache {
	return &TaskCache{client: client, ttl: TaskCacheTTL}
}

// Get returns nil, nil on a cache miss.
func (c *TaskCache) Get(ctx context.Context, token string) (*task.Task, error) {
	val, err := c.client.Get(ctx, TaskKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var t task.Task
	if err := json.Unmarshal(val, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *TaskCache) Set(ctx context.Context, t *task.Task) error {
	if !t.Status.Terminal() {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, TaskKey(t.Token), data, c.ttl).Err()
}

// Build cache key for single task
func TaskKey(token string) string {
	return fmt.Sprintf("task:%s", token)
}
