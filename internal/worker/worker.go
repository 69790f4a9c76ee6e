// Package worker consumes queued task ids and runs the matching operation.
package worker

import (
	"context"
	"errors"
	"sync"

	"bulkops/internal/queue"

	"github.com/sirupsen/logrus"
)

type Worker struct {
	id         int
	consumer   queue.Consumer
	runner     *Runner
	maxRetries int
}

func New(id int, consumer queue.Consumer, runner *Runner, maxRetries int) *Worker {
	return &Worker{id: id, consumer: consumer, runner: runner, maxRetries: maxRetries}
}

// Start consumes until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	logrus.Infof("Worker %d started", w.id)
	defer logrus.Infof("Worker %d stopped", w.id)

	err := w.consumer.Consume(ctx, w.id, w.handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) handle(ctx context.Context, job queue.Job) error {
	log := logrus.WithFields(logrus.Fields{
		"worker_id": w.id,
		"task_id":   job.TaskID,
		"attempt":   job.Attempt,
	})
	log.Info("Processing task")

	err := w.runner.Execute(ctx, job)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	if job.Attempt >= w.maxRetries {
		log.WithError(err).Errorf("Giving up after %d retries", job.Attempt)
		if err := w.runner.GiveUp(ctx, job.TaskID); err != nil {
			log.WithError(err).Error("Failed to mark task as failed after max retries")
		}
		return nil
	}

	log.WithError(err).Warnf("Task failed, requeuing (retry %d/%d)", job.Attempt+1, w.maxRetries)
	return err
}

// Pool runs count workers sharing one consumer.
func Pool(ctx context.Context, count int, consumer queue.Consumer, runner *Runner, maxRetries int) {
	var wg sync.WaitGroup
	for i := 1; i <= count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := New(id, consumer, runner, maxRetries).Start(ctx); err != nil {
				logrus.WithError(err).Errorf("Worker %d exited", id)
			}
		}(i)
	}
	wg.Wait()
}
