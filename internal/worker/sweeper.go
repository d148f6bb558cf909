package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/smurching/cloudnotes/internal/metrics"
	"github.com/smurching/cloudnotes/internal/queue"
	"github.com/smurching/cloudnotes/internal/tracker"
	"github.com/smurching/cloudnotes/internal/types"
)

const sweepBatch = 100

type SweepReport struct {
	Requeued    int `json:"requeued"`
	Failed      int `json:"failed"`
	Republished int `json:"republished"`
	Enqueued    int `json:"enqueued"`
}

// Sweeper recovers keys abandoned by crashed or stuck workers. Processing
// records older than StaleAfter count as a failed attempt; queued records
// older than StaleAfter get their job published again. Uploaded records that
// never reached queued are queued and published.
type Sweeper struct {
	tracker    tracker.Tracker
	queue      queue.Queue
	metrics    *metrics.Metrics
	retry      RetryPolicy
	staleAfter time.Duration
}

func NewSweeper(tr tracker.Tracker, q queue.Queue, m *metrics.Metrics, retry RetryPolicy, staleAfter time.Duration) *Sweeper {
	if m == nil {
		m = metrics.Nop()
	}
	return &Sweeper{
		tracker:    tr,
		queue:      q,
		metrics:    m,
		retry:      retry,
		staleAfter: staleAfter,
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	processing, err := s.tracker.ListStale(ctx, types.StatusProcessing, s.staleAfter, sweepBatch)
	if err != nil {
		return report, fmt.Errorf("failed to list stale processing records: %w", err)
	}

	for _, rec := range processing {
		cause := fmt.Sprintf("processing exceeded %v", s.staleAfter)
		outcome, err := retryOrFail(ctx, s.tracker, s.queue, s.retry, rec, cause)
		if errors.Is(err, types.ErrConflict) {
			continue
		}
		if err != nil {
			return report, err
		}

		switch outcome {
		case metrics.OutcomeRetried:
			report.Requeued++
			s.metrics.SweepTotal.WithLabelValues(metrics.SweepRequeued).Inc()
		case metrics.OutcomeFailed:
			report.Failed++
			s.metrics.SweepTotal.WithLabelValues(metrics.SweepFailed).Inc()
		}
	}

	queued, err := s.tracker.ListStale(ctx, types.StatusQueued, s.staleAfter, sweepBatch)
	if err != nil {
		return report, fmt.Errorf("failed to list stale queued records: %w", err)
	}

	for _, rec := range queued {
		if err := s.queue.Publish(ctx, types.NewProcessingJob(rec.Key, rec.Attempts)); err != nil {
			return report, fmt.Errorf("failed to republish %s: %w", rec.Key, err)
		}
		report.Republished++
		s.metrics.SweepTotal.WithLabelValues(metrics.SweepRepublished).Inc()
	}

	uploaded, err := s.tracker.ListStale(ctx, types.StatusUploaded, s.staleAfter, sweepBatch)
	if err != nil {
		return report, fmt.Errorf("failed to list stale uploaded records: %w", err)
	}

	for _, rec := range uploaded {
		moved, err := s.tracker.Transition(ctx, rec.Key, types.StatusUploaded, types.StatusQueued)
		if errors.Is(err, types.ErrConflict) || errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return report, err
		}
		if err := s.queue.Publish(ctx, types.NewProcessingJob(moved.Key, moved.Attempts)); err != nil {
			// queued now, so the next sweep republishes it
			return report, fmt.Errorf("failed to publish %s: %w", rec.Key, err)
		}
		report.Enqueued++
		s.metrics.SweepTotal.WithLabelValues(metrics.SweepEnqueued).Inc()
	}

	if report != (SweepReport{}) {
		log.Printf("🧹 Sweep: %d requeued, %d failed, %d republished, %d enqueued",
			report.Requeued, report.Failed, report.Republished, report.Enqueued)
	}
	return report, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.Printf("❌ Sweep failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
