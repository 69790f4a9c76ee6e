// Package queue delivers task ids from the dispatcher to exactly one worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"bulkops/internal/config"
)

// Job is the message body. Attempt counts redeliveries after
// infrastructure errors and starts at 0.
type Job struct {
	TaskID  int64 `json:"task_id"`
	Attempt int   `json:"attempt"`
}

// Handler processes one job. A non-nil error asks the driver to redeliver
// the job with Attempt+1.
type Handler func(ctx context.Context, job Job) error

type Publisher interface {
	Publish(ctx context.Context, job Job) error
	Close() error
}

type Consumer interface {
	// Consume blocks, handing jobs to h one at a time, until ctx is done.
	Consume(ctx context.Context, workerID int, h Handler) error
	Close() error
}

// Broker is both ends of a queue driver.
type Broker interface {
	Publisher
	Consumer
}

// New connects the driver named by cfg.Queue.Driver.
func New(ctx context.Context, cfg *config.Config) (Broker, error) {
	switch cfg.Queue.Driver {
	case "", "rabbitmq":
		conn := SetupRabbitMQ(&cfg.RabbitMQ)
		return NewRabbitMQ(conn, cfg.Queue.Name)
	case "redis":
		return NewRedisQueue(ctx, &cfg.Redis, cfg.Queue.Name)
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}

func encodeJob(job Job) ([]byte, error) {
	return json.Marshal(job)
}

func decodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, err
	}
	if job.TaskID <= 0 {
		return Job{}, fmt.Errorf("invalid task id %d", job.TaskID)
	}
	return job, nil
}
