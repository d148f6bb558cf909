package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smurching/cloudnotes/internal/types"
)

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a RabbitMQ channel: %w", err)
	}

	return &RabbitMQ{
		Conn:    conn,
		Channel: channel,
	}, nil
}

func (r *RabbitMQ) DeclareQueue(name string, durable bool, args amqp.Table) error {
	_, err := r.Channel.QueueDeclare(name, durable, false, false, false, args)
	if err != nil {
		return fmt.Errorf("failed to declare a %s queue: %w", name, err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if err := r.Channel.Close(); err != nil {
		return fmt.Errorf("failed to close channel: %w", err)
	}
	if err := r.Conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// JobQueue is the OCR job topology on RabbitMQ:
//
//	<queue>        main work queue, rejected messages dead-letter to <dlq>
//	<queue>_retry_<ms>  one holding queue per delay, with a queue-wide TTL;
//	                    expired messages dead-letter back to <queue>
//	<dlq>               poison messages
//
// RabbitMQ only expires messages at the head of a queue, so delays never
// share a holding queue: a short retry would wait behind a long one.
type JobQueue struct {
	client      *RabbitMQ
	queueName   string
	retryPrefix string
	dlqName     string

	// publishing, confirm waits and lazy declares share the channel
	mu          sync.Mutex
	retryQueues map[time.Duration]string
}

type JobQueueConfig struct {
	QueueName string
	DLQName   string
	Prefetch  int
}

func NewJobQueue(client *RabbitMQ, cfg JobQueueConfig) (*JobQueue, error) {
	dlqName := cfg.DLQName
	if dlqName == "" {
		dlqName = cfg.QueueName + "_dlq"
	}

	q := &JobQueue{
		client:      client,
		queueName:   cfg.QueueName,
		retryPrefix: cfg.QueueName + "_retry_",
		dlqName:     dlqName,
		retryQueues: make(map[time.Duration]string),
	}

	if err := client.DeclareQueue(q.dlqName, true, nil); err != nil {
		return nil, err
	}

	if err := client.DeclareQueue(q.queueName, true, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": q.dlqName,
	}); err != nil {
		return nil, err
	}

	if cfg.Prefetch > 0 {
		if err := client.Channel.Qos(cfg.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	if err := client.Channel.Confirm(false); err != nil {
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	log.Printf("✓ Queues declared: %s, %s", q.queueName, q.dlqName)
	return q, nil
}

func (q *JobQueue) Publish(ctx context.Context, job types.ProcessingJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.publish(ctx, q.queueName, job)
}

// PublishDelayed parks the job in the holding queue for its delay. Expired
// messages dead-letter back onto the main queue.
func (q *JobQueue) PublishDelayed(ctx context.Context, job types.ProcessingJob, delay time.Duration) error {
	delay = delay.Truncate(time.Millisecond)
	if delay <= 0 {
		return q.Publish(ctx, job)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	holding, err := q.retryQueue(delay)
	if err != nil {
		return err
	}
	return q.publish(ctx, holding, job)
}

// retryQueue declares the holding queue for delay on first use. Callers hold mu.
func (q *JobQueue) retryQueue(delay time.Duration) (string, error) {
	if name, ok := q.retryQueues[delay]; ok {
		return name, nil
	}

	name := retryQueueName(q.retryPrefix, delay)
	if err := q.client.DeclareQueue(name, true, amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": q.queueName,
	}); err != nil {
		return "", err
	}

	q.retryQueues[delay] = name
	return name, nil
}

func retryQueueName(prefix string, delay time.Duration) string {
	return prefix + strconv.FormatInt(delay.Milliseconds(), 10)
}

// publish sends one job and waits for the broker confirm. Callers hold mu.
func (q *JobQueue) publish(ctx context.Context, queueName string, job types.ProcessingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	confirm, err := q.client.Channel.PublishWithDeferredConfirmWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.JobID,
		Timestamp:    job.CreatedAt,
		Headers:      amqp.Table{"x-attempt": int32(job.Attempt)},
	})
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.JobID, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm job %s: %w", job.JobID, err)
	}
	if !acked {
		return fmt.Errorf("broker rejected job %s", job.JobID)
	}

	log.Printf("✓ Job published: %s (key: %s, queue: %s)", job.JobID, job.Key, queueName)
	return nil
}

func (q *JobQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	messages, err := q.client.Channel.Consume(q.queueName, "ocr-worker", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume from %s queue: %w", q.queueName, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var job types.ProcessingJob
				if err := json.Unmarshal(msg.Body, &job); err != nil || job.Key == "" {
					log.Printf("❌ Malformed job message %s, sending to DLQ: %v", msg.MessageId, err)
					msg.Nack(false, false)
					continue
				}

				d := NewDelivery(job,
					func() error { return msg.Ack(false) },
					func(requeue bool) error { return msg.Nack(false, requeue) },
				)

				select {
				case out <- d:
				case <-ctx.Done():
					msg.Nack(false, true)
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (q *JobQueue) Close() error {
	return q.client.Close()
}
