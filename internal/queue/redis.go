package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bulkops/internal/config"
	"bulkops/internal/db"
	"bulkops/internal/observability"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	redisKeyPrefix = "queue:"
	dequeueTimeout = 2 * time.Second
	maxRetryDelay  = 30 * time.Second
	promoteBatch   = 100
)

// promoteDue moves jobs whose retry time has passed from the delayed set to
// the ready list. KEYS[1] = delayed zset, KEYS[2] = ready list,
// ARGV[1] = now (unix ms), ARGV[2] = batch size.
var promoteDue = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, job in ipairs(due) do
  redis.call("ZREM", KEYS[1], job)
  redis.call("LPUSH", KEYS[2], job)
end
return #due
`)

// RedisQueue is a list-backed queue: LPUSH to publish, BRPOP to consume.
// Retries wait in a sorted set scored by due time, so a pending retry
// survives the worker that scheduled it.
type RedisQueue struct {
	client  *redis.Client
	key     string
	delayed string
	name    string
}

func NewRedisQueue(ctx context.Context, cfg *config.RedisConfig, queueName string) (*RedisQueue, error) {
	client, err := db.OpenRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisQueueWithClient(client, queueName), nil
}

func NewRedisQueueWithClient(client *redis.Client, queueName string) *RedisQueue {
	key := redisKeyPrefix + queueName
	return &RedisQueue{client: client, key: key, delayed: key + ":delayed", name: queueName}
}

func (q *RedisQueue) Publish(ctx context.Context, job Job) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to publish task %d: %w", job.TaskID, err)
	}
	observability.GlobalMetrics.MessagePublished(q.name)
	return nil
}

func (q *RedisQueue) Consume(ctx context.Context, workerID int, h Handler) error {
	log := logrus.WithField("worker_id", workerID)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := q.promote(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("Failed to promote delayed jobs")
		}

		result, err := q.client.BRPop(ctx, dequeueTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.WithError(err).Warn("dequeue error")
			sleep(ctx, time.Second)
			continue
		}
		if len(result) != 2 {
			log.Errorf("unexpected BRPOP result: %v", result)
			continue
		}
		observability.GlobalMetrics.MessageConsumed(q.name)

		job, err := decodeJob([]byte(result[1]))
		if err != nil {
			log.WithError(err).Error("invalid payload")
			continue
		}

		if err := h(ctx, job); err != nil {
			if ctx.Err() != nil {
				q.requeue(job, log)
				return nil
			}
			q.retryLater(job, log)
		}
	}
}

// retryLater schedules job again after an exponential backoff. The job is
// written to Redis immediately and promoted by whichever consumer polls
// after it becomes due.
func (q *RedisQueue) retryLater(job Job, log *logrus.Entry) {
	next := Job{TaskID: job.TaskID, Attempt: job.Attempt + 1}
	delay := backoff(next.Attempt)
	log.Infof("Retrying task %d in %v (attempt %d)", job.TaskID, delay, next.Attempt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.schedule(ctx, next, time.Now().Add(delay)); err != nil {
		log.WithError(err).Errorf("Failed to schedule retry of task %d", job.TaskID)
	}
}

func (q *RedisQueue) schedule(ctx context.Context, job Job, due time.Time) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.delayed, &redis.Z{Score: float64(due.UnixMilli()), Member: data}).Err()
}

func (q *RedisQueue) promote(ctx context.Context) error {
	return promoteDue.Run(ctx, q.client, []string{q.delayed, q.key}, time.Now().UnixMilli(), promoteBatch).Err()
}

// requeue puts job back at the consuming end of the list without counting
// an attempt.
func (q *RedisQueue) requeue(job Job, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := encodeJob(job)
	if err == nil {
		err = q.client.RPush(ctx, q.key, data).Err()
	}
	if err != nil {
		log.WithError(err).Errorf("Failed to requeue task %d on shutdown", job.TaskID)
	}
}

func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 {
		return maxRetryDelay
	}
	d := time.Second * time.Duration(1<<attempt)
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
