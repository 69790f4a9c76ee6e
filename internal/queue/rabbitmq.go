package queue

import (
	"context"
	"fmt"
	"time"

	"bulkops/internal/config"
	"bulkops/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const retryHeader = "x-retry-count"

func SetupRabbitMQ(rabbitMQCfg *config.RabbitMQConfig) *amqp.Connection {
	var conn *amqp.Connection
	var err error

	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(rabbitMQCfg.URL)
		if err != nil {
			logrus.Warnf("Failed to connect to RabbitMQ (attempt %d/%d): %v", i+1, maxRetries, err)
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		break
	}

	if err != nil {
		logrus.Fatalf("Failed to connect to RabbitMQ after %d attempts: %v", maxRetries, err)
	}

	logrus.Info("RabbitMQ connection established successfully")
	return conn
}

func CreateChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return ch, nil
}

func DeclareQueue(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue: %w", err)
	}

	return q, nil
}

type RabbitMQ struct {
	conn  *amqp.Connection
	queue string
}

// NewRabbitMQ declares the durable queue and returns a broker on it.
func NewRabbitMQ(conn *amqp.Connection, queueName string) (*RabbitMQ, error) {
	ch, err := CreateChannel(conn)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, queueName); err != nil {
		return nil, err
	}
	return &RabbitMQ{conn: conn, queue: queueName}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, job Job) error {
	ch, err := CreateChannel(r.conn)
	if err != nil {
		return err
	}
	defer ch.Close()

	return r.publish(ctx, ch, job)
}

func (r *RabbitMQ) publish(ctx context.Context, ch *amqp.Channel, job Job) error {
	body, err := encodeJob(Job{TaskID: job.TaskID})
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx,
		"",      // exchange
		r.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Headers:      amqp.Table{retryHeader: int32(job.Attempt)},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish task %d: %w", job.TaskID, err)
	}
	observability.GlobalMetrics.MessagePublished(r.queue)
	return nil
}

// Consume acknowledges manually with a prefetch of one. Failed jobs are
// republished with an incremented retry header before the original is acked.
func (r *RabbitMQ) Consume(ctx context.Context, workerID int, h Handler) error {
	ch, err := CreateChannel(r.conn)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("worker %d failed to set QoS: %w", workerID, err)
	}

	msgs, err := ch.Consume(
		r.queue,
		fmt.Sprintf("worker-%d", workerID),
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("worker %d failed to start consuming messages: %w", workerID, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("worker %d: delivery channel closed", workerID)
			}
			observability.GlobalMetrics.MessageConsumed(r.queue)
			r.handle(ctx, ch, msg, h)
		}
	}
}

func (r *RabbitMQ) handle(ctx context.Context, ch *amqp.Channel, msg amqp.Delivery, h Handler) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		logrus.WithError(err).Error("invalid payload")
		_ = msg.Nack(false, false)
		return
	}
	job.Attempt = retryCount(msg.Headers)

	if err := h(ctx, job); err != nil {
		if ctx.Err() != nil {
			// shutting down: hand the job back untouched
			_ = msg.Nack(false, true)
			return
		}
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if perr := r.publish(pubCtx, ch, Job{TaskID: job.TaskID, Attempt: job.Attempt + 1}); perr != nil {
			logrus.WithError(perr).WithField("task_id", job.TaskID).Error("Failed to republish message")
			_ = msg.Nack(false, true)
			return
		}
	}
	_ = msg.Ack(false)
}

func retryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}
