package queue

import (
	"context"
	"sync"
	"time"

	"github.com/smurching/cloudnotes/internal/types"
)

// MemoryQueue is an in-process queue for the standalone binary and tests.
// Nack with requeue redelivers; Nack without requeue dead-letters.
type MemoryQueue struct {
	deliveries chan types.ProcessingJob

	mu     sync.Mutex
	closed bool
	timers []*time.Timer
	dead   []types.ProcessingJob
	acked  int
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{deliveries: make(chan types.ProcessingJob, capacity)}
}

func (q *MemoryQueue) Publish(ctx context.Context, job types.ProcessingJob) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case q.deliveries <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) PublishDelayed(ctx context.Context, job types.ProcessingJob, delay time.Duration) error {
	if delay <= 0 {
		return q.Publish(ctx, job)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	timer := time.AfterFunc(delay, func() {
		q.Publish(context.Background(), job)
	})
	q.timers = append(q.timers, timer)
	return nil
}

func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case job := <-q.deliveries:
				d := q.delivery(job)
				select {
				case out <- d:
				case <-ctx.Done():
					q.requeue(job)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (q *MemoryQueue) delivery(job types.ProcessingJob) Delivery {
	var once sync.Once
	settle := func(f func()) error {
		once.Do(f)
		return nil
	}

	return NewDelivery(job,
		func() error {
			return settle(func() {
				q.mu.Lock()
				q.acked++
				q.mu.Unlock()
			})
		},
		func(requeue bool) error {
			return settle(func() {
				if requeue {
					q.requeue(job)
					return
				}
				q.mu.Lock()
				q.dead = append(q.dead, job)
				q.mu.Unlock()
			})
		},
	)
}

func (q *MemoryQueue) requeue(job types.ProcessingJob) {
	go q.Publish(context.Background(), job)
}

// DeadLetters returns the jobs rejected without requeue.
func (q *MemoryQueue) DeadLetters() []types.ProcessingJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.ProcessingJob(nil), q.dead...)
}

// Acked returns how many deliveries were acknowledged.
func (q *MemoryQueue) Acked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked
}

// Pending returns the number of jobs waiting for a consumer.
func (q *MemoryQueue) Pending() int {
	return len(q.deliveries)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	for _, t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	return nil
}
