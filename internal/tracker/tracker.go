package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/smurching/cloudnotes/internal/types"
)

// Tracker owns the processing status of every key. Each mutation is an atomic
// compare-and-swap on the key's current status, so two callers racing on the
// same edge see exactly one winner.
type Tracker interface {
	// Create inserts a new record in status uploaded
	Create(ctx context.Context, key string, size int64) (types.FileRecord, error)

	Get(ctx context.Context, key string) (types.FileRecord, error)

	// Transition moves key from one status to another if it is currently in from
	Transition(ctx context.Context, key string, from, to types.Status) (types.FileRecord, error)

	// Requeue moves processing back to queued and counts the failed attempt
	Requeue(ctx context.Context, key, cause string) (types.FileRecord, error)

	// MarkProcessed moves processing to processed and records the derivative
	MarkProcessed(ctx context.Context, key, processedKey string) (types.FileRecord, error)

	// RecordFailure counts an attempt and parks the key in failed
	RecordFailure(ctx context.Context, key, cause string) (types.FileRecord, error)

	// Reset returns a failed key to uploaded for a fresh upload
	Reset(ctx context.Context, key string, size int64) (types.FileRecord, error)

	// Remove deletes the record if it is currently in from
	Remove(ctx context.Context, key string, from types.Status) error

	// ListStale returns up to limit records in status not updated for olderThan,
	// measured on the clock that stamps updated_at
	ListStale(ctx context.Context, status types.Status, olderThan time.Duration, limit int) ([]types.FileRecord, error)
}

// failableStatuses are the statuses RecordFailure may leave.
var failableStatuses = []types.Status{types.StatusUploaded, types.StatusQueued, types.StatusProcessing}

func canFail(status types.Status) bool {
	for _, s := range failableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func checkTransition(key string, from, to types.Status) error {
	if !types.CanTransition(from, to) {
		return fmt.Errorf("%s: %w: %w: %s -> %s", key, types.ErrConflict, types.ErrInvalidTransition, from, to)
	}
	return nil
}

func conflict(key string, want, got types.Status) error {
	return fmt.Errorf("%s: %w: expected status %s, found %s", key, types.ErrConflict, want, got)
}

func notFound(key string) error {
	return fmt.Errorf("%s: %w", key, types.ErrNotFound)
}
