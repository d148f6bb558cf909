package queue

import (
	"context"
	"errors"
	"time"

	"github.com/smurching/cloudnotes/internal/types"
)

var ErrClosed = errors.New("queue closed")

// Queue carries ProcessingJobs from the ingest path to the worker pool.
// Delivery is at-least-once; the tracker's claim step makes duplicates harmless.
type Queue interface {
	Publish(ctx context.Context, job types.ProcessingJob) error

	// PublishDelayed makes the job visible to consumers after delay
	PublishDelayed(ctx context.Context, job types.ProcessingJob, delay time.Duration) error

	// Consume streams deliveries until ctx is cancelled
	Consume(ctx context.Context) (<-chan Delivery, error)

	Close() error
}

// Delivery is one received job. Exactly one of Ack or Nack must be called.
type Delivery struct {
	Job types.ProcessingJob

	ack  func() error
	nack func(requeue bool) error
}

func NewDelivery(job types.ProcessingJob, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{Job: job, ack: ack, nack: nack}
}

func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack rejects the delivery. With requeue the job is redelivered, otherwise it
// is dead-lettered.
func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}
