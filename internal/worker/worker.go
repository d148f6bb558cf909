package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/smurching/cloudnotes/internal/metrics"
	"github.com/smurching/cloudnotes/internal/ocr"
	"github.com/smurching/cloudnotes/internal/queue"
	"github.com/smurching/cloudnotes/internal/storage"
	"github.com/smurching/cloudnotes/internal/tracker"
	"github.com/smurching/cloudnotes/internal/types"
)

type Config struct {
	Concurrency int
	JobTimeout  time.Duration
	Retry       RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		Concurrency: 5,
		JobTimeout:  2 * time.Minute,
		Retry: RetryPolicy{
			MaxRetries: 3,
			BaseDelay:  5 * time.Second,
			MaxDelay:   5 * time.Minute,
		},
	}
}

// Pool runs a fixed number of OCR workers over the job queue. A worker only
// touches a key after winning the queued -> processing claim, so duplicate
// deliveries and concurrent workers never process the same key twice.
type Pool struct {
	queue      queue.Queue
	store      storage.ObjectStore
	tracker    tracker.Tracker
	recognizer ocr.Recognizer
	metrics    *metrics.Metrics
	cfg        Config
}

func NewPool(
	q queue.Queue,
	store storage.ObjectStore,
	tr tracker.Tracker,
	recognizer ocr.Recognizer,
	m *metrics.Metrics,
	cfg Config,
) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Pool{
		queue:      q,
		store:      store,
		tracker:    tr,
		recognizer: recognizer,
		metrics:    m,
		cfg:        cfg,
	}
}

// Start blocks until ctx is cancelled and every in-flight job has finished
// its bookkeeping.
func (p *Pool) Start(ctx context.Context) error {
	log.Printf("🚀 Starting OCR worker pool with %d workers", p.cfg.Concurrency)

	deliveries, err := p.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID, deliveries)
		}(i)
	}

	<-ctx.Done()
	log.Println("⏹️  Shutting down workers...")
	wg.Wait()

	return ctx.Err()
}

func (p *Pool) worker(ctx context.Context, workerID int, deliveries <-chan queue.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				log.Printf("👷 Worker %d stopped (channel closed)", workerID)
				return
			}
			if ctx.Err() != nil {
				d.Nack(true)
				return
			}
			p.handle(ctx, workerID, d)

		case <-ctx.Done():
			log.Printf("👷 Worker %d stopped (context cancelled)", workerID)
			return
		}
	}
}

func (p *Pool) handle(ctx context.Context, workerID int, d queue.Delivery) {
	job := d.Job

	rec, err := p.tracker.Transition(ctx, job.Key, types.StatusQueued, types.StatusProcessing)
	if err != nil {
		if errors.Is(err, types.ErrConflict) || errors.Is(err, types.ErrNotFound) {
			// duplicate or obsolete delivery
			p.metrics.ObserveJob(metrics.OutcomeSkipped, time.Time{})
			d.Ack()
			return
		}
		log.Printf("❌ Worker %d: claim %s failed: %v", workerID, job.Key, err)
		p.metrics.ObserveJob(metrics.OutcomeNacked, time.Time{})
		d.Nack(true)
		return
	}

	p.metrics.JobsInFlight.Inc()
	defer p.metrics.JobsInFlight.Dec()

	started := time.Now()
	log.Printf("📄 Worker %d: processing %s (job %s, attempt %d)", workerID, job.Key, job.JobID, rec.Attempts+1)

	// Once claimed, bookkeeping must land even if the pool is shutting down.
	bookkeeping := context.WithoutCancel(ctx)

	outcome, err := p.process(ctx, bookkeeping, rec)
	if err != nil {
		log.Printf("❌ Worker %d: bookkeeping for %s failed: %v", workerID, job.Key, err)
		p.metrics.ObserveJob(metrics.OutcomeNacked, started)
		d.Nack(true)
		return
	}

	p.metrics.ObserveJob(outcome, started)
	if err := d.Ack(); err != nil {
		log.Printf("⚠️  Worker %d: failed to ack %s: %v", workerID, job.JobID, err)
	}
}

// process runs one claimed attempt. The returned error is only set when the
// tracker could not record the outcome.
func (p *Pool) process(ctx, bookkeeping context.Context, rec types.FileRecord) (string, error) {
	jobCtx := ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	data, err := p.store.Get(jobCtx, rec.Key)
	if errors.Is(err, types.ErrNotFound) {
		// nothing to retry against
		if _, ferr := p.tracker.RecordFailure(bookkeeping, rec.Key, "source object missing"); ferr != nil && !errors.Is(ferr, types.ErrConflict) {
			return "", ferr
		}
		log.Printf("💀 %s: source object missing, marked failed", rec.Key)
		return metrics.OutcomeFailed, nil
	}
	if err != nil {
		return p.failAttempt(bookkeeping, rec, err)
	}

	res, err := p.recognizer.Recognize(jobCtx, ocr.Input{Key: rec.Key, Data: data})
	if err != nil {
		return p.failAttempt(bookkeeping, rec, err)
	}

	processedKey := types.ProcessedKeyFor(rec.Key)
	payload, err := json.Marshal(types.ProcessedDocument{
		Key:         processedKey,
		SourceKey:   rec.Key,
		Text:        res.Text,
		Confidence:  res.Confidence,
		Engine:      res.Engine,
		Pages:       res.Pages,
		ContentType: "application/json",
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		return p.failAttempt(bookkeeping, rec, err)
	}

	if err := p.store.Put(jobCtx, processedKey, payload, "application/json"); err != nil {
		return p.failAttempt(bookkeeping, rec, err)
	}

	if _, err := p.tracker.MarkProcessed(bookkeeping, rec.Key, processedKey); err != nil {
		if errors.Is(err, types.ErrConflict) {
			// the sweeper reclaimed the key while we were working
			log.Printf("⚠️  %s: processed but no longer claimed", rec.Key)
			return metrics.OutcomeSkipped, nil
		}
		return "", err
	}

	log.Printf("✅ %s processed by %s (%d chars)", rec.Key, res.Engine, len(res.Text))
	return metrics.OutcomeProcessed, nil
}

// failAttempt counts a failed attempt: requeue with backoff while the budget
// lasts, otherwise park the key in failed.
func (p *Pool) failAttempt(ctx context.Context, rec types.FileRecord, cause error) (string, error) {
	outcome, err := retryOrFail(ctx, p.tracker, p.queue, p.cfg.Retry, rec, cause.Error())
	if err != nil && errors.Is(err, types.ErrConflict) {
		return metrics.OutcomeSkipped, nil
	}
	return outcome, err
}

func retryOrFail(
	ctx context.Context,
	tr tracker.Tracker,
	q queue.Queue,
	policy RetryPolicy,
	rec types.FileRecord,
	cause string,
) (string, error) {
	if policy.Exhausted(rec.Attempts) {
		failed, err := tr.RecordFailure(ctx, rec.Key, fmt.Sprintf("%v: %s", types.ErrExhausted, cause))
		if err != nil {
			return "", err
		}
		log.Printf("💀 %s failed after %d attempts: %s", rec.Key, failed.Attempts, cause)
		return metrics.OutcomeFailed, nil
	}

	requeued, err := tr.Requeue(ctx, rec.Key, cause)
	if err != nil {
		return "", err
	}

	delay := policy.Backoff(rec.Attempts)
	job := types.NewProcessingJob(rec.Key, requeued.Attempts)
	if err := q.PublishDelayed(ctx, job, delay); err != nil {
		// the record stays queued; the sweeper republishes it
		log.Printf("⚠️  %s: failed to publish retry: %v", rec.Key, err)
	}

	log.Printf("🔄 %s: retrying in %v (attempt %d/%d): %s", rec.Key, delay, requeued.Attempts+1, policy.MaxRetries, cause)
	return metrics.OutcomeRetried, nil
}
