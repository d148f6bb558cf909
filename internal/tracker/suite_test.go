package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smurching/cloudnotes/internal/types"
)

// runTrackerSuite exercises the Tracker contract. newKey must return a key no
// other test has used on the same backend.
func runTrackerSuite(t *testing.T, tr Tracker, newKey func() string) {
	t.Run("CreateAndGet", func(t *testing.T) {
		ctx := context.Background()
		key := newKey()

		if _, err := tr.Get(ctx, key); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		rec, err := tr.Create(ctx, key, 42)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if rec.Status != types.StatusUploaded || rec.OriginalSize != 42 || rec.Attempts != 0 {
			t.Fatalf("unexpected record: %+v", rec)
		}

		if _, err := tr.Create(ctx, key, 42); !errors.Is(err, types.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}

		got, err := tr.Get(ctx, key)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Key != key || got.Status != types.StatusUploaded {
			t.Fatalf("unexpected record: %+v", got)
		}
	})

	t.Run("TransitionCAS", func(t *testing.T) {
		ctx := context.Background()
		key := newKey()
		mustCreate(t, tr, key)

		if _, err := tr.Transition(ctx, key, types.StatusQueued, types.StatusProcessing); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict from wrong source status, got %v", err)
		}

		rec, err := tr.Transition(ctx, key, types.StatusUploaded, types.StatusQueued)
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		if rec.Status != types.StatusQueued {
			t.Fatalf("expected queued, got %s", rec.Status)
		}

		if _, err := tr.Transition(ctx, "missing/"+key, types.StatusUploaded, types.StatusQueued); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("InvalidEdges", func(t *testing.T) {
		ctx := context.Background()
		key := newKey()
		mustCreate(t, tr, key)

		for _, edge := range [][2]types.Status{
			{types.StatusUploaded, types.StatusProcessing},
			{types.StatusUploaded, types.StatusProcessed},
			{types.StatusQueued, types.StatusProcessed},
			{types.StatusProcessing, types.StatusProcessed},
			{types.StatusProcessed, types.StatusQueued},
		} {
			_, err := tr.Transition(ctx, key, edge[0], edge[1])
			if !errors.Is(err, types.ErrInvalidTransition) || !errors.Is(err, types.ErrConflict) {
				t.Fatalf("%s -> %s: expected invalid transition conflict, got %v", edge[0], edge[1], err)
			}
		}
	})

	t.Run("ConcurrentClaimHasOneWinner", func(t *testing.T) {
		ctx := context.Background()
		key := newKey()
		mustCreate(t, tr, key)
		mustTransition(t, tr, key, types.StatusUploaded, types.StatusQueued)

		var (
			wg      sync.WaitGroup
			winners atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := tr.Transition(ctx, key, types.StatusQueued, types.StatusProcessing)
				if err == nil {
					winners.Add(1)
				} else if !errors.Is(err, types.ErrConflict) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if got := winners.Load(); got != 1 {
			t.Fatalf("expected exactly one winner, got %d", got)
		}
	})

	t.Run("RequeueAndMarkProcessed", func(t *testing.T) {
		ctx := context.Background()
		key := newKey()
		claim(t, tr, key)

		rec, err := tr.Requeue(ctx, key, "engine timeout")
		if err != nil {
			t.Fatalf("requeue: %v", err)
		}
		if rec.Status != types.StatusQueued || rec.Attempts != 1 || rec.LastError != "engine timeout" {
			t.Fatalf("unexpected record after requeue: %+v", rec)
		}

		if _, err := tr.Requeue(ctx, key, "again"); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict requeueing a queued key, got %v", err)
		}
		if _, err := tr.MarkProcessed(ctx, key, key+types.ProcessedSuffix); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict marking a queued key, got %v", err)
		}

		mustTransition(t, tr, key, types.StatusQueued, types.StatusProcessing)
		rec, err = tr.MarkProcessed(ctx, key, key+types.ProcessedSuffix)
		if err != nil {
			t.Fatalf("mark processed: %v", err)
		}
		if rec.Status != types.StatusProcessed || rec.ProcessedKey != key+types.ProcessedSuffix || rec.Attempts != 1 {
			t.Fatalf("unexpected record after processing: %+v", rec)
		}

		if _, err := tr.RecordFailure(ctx, key, "late"); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict failing a processed key, got %v", err)
		}
	})

	t.Run("FailureResetAndRemove", func(t *testing.T) {
		ctx := context.Background()
		key := newKey()
		claim(t, tr, key)

		rec, err := tr.RecordFailure(ctx, key, "source missing")
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if rec.Status != types.StatusFailed || rec.Attempts != 1 || rec.ProcessedKey != "" {
			t.Fatalf("unexpected failed record: %+v", rec)
		}

		if _, err := tr.RecordFailure(ctx, key, "twice"); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict failing a failed key, got %v", err)
		}

		rec, err = tr.Reset(ctx, key, 7)
		if err != nil {
			t.Fatalf("reset: %v", err)
		}
		if rec.Status != types.StatusUploaded || rec.Attempts != 0 || rec.LastError != "" || rec.OriginalSize != 7 {
			t.Fatalf("unexpected reset record: %+v", rec)
		}

		if _, err := tr.Reset(ctx, key, 7); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict resetting an uploaded key, got %v", err)
		}

		if err := tr.Remove(ctx, key, types.StatusQueued); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict removing with wrong status, got %v", err)
		}
		if err := tr.Remove(ctx, key, types.StatusUploaded); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, err := tr.Get(ctx, key); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after remove, got %v", err)
		}
		if err := tr.Remove(ctx, key, types.StatusUploaded); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound removing twice, got %v", err)
		}
	})

	t.Run("ListStale", func(t *testing.T) {
		ctx := context.Background()
		key := newKey()
		claim(t, tr, key)

		stale, err := tr.ListStale(ctx, types.StatusProcessing, -time.Hour, 1000)
		if err != nil {
			t.Fatalf("list stale: %v", err)
		}
		if !containsKey(stale, key) {
			t.Fatalf("expected %s in stale processing list", key)
		}

		fresh, err := tr.ListStale(ctx, types.StatusProcessing, time.Hour, 1000)
		if err != nil {
			t.Fatalf("list stale: %v", err)
		}
		if containsKey(fresh, key) {
			t.Fatalf("did not expect %s before the cutoff", key)
		}
	})
}

func mustCreate(t *testing.T, tr Tracker, key string) {
	t.Helper()
	if _, err := tr.Create(context.Background(), key, 10); err != nil {
		t.Fatalf("create %s: %v", key, err)
	}
}

func mustTransition(t *testing.T, tr Tracker, key string, from, to types.Status) {
	t.Helper()
	if _, err := tr.Transition(context.Background(), key, from, to); err != nil {
		t.Fatalf("transition %s %s -> %s: %v", key, from, to, err)
	}
}

func claim(t *testing.T, tr Tracker, key string) {
	t.Helper()
	mustCreate(t, tr, key)
	mustTransition(t, tr, key, types.StatusUploaded, types.StatusQueued)
	mustTransition(t, tr, key, types.StatusQueued, types.StatusProcessing)
}

func containsKey(records []types.FileRecord, key string) bool {
	for _, rec := range records {
		if rec.Key == key {
			return true
		}
	}
	return false
}

func keySequence(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s/doc-%d", prefix, n.Add(1))
	}
}
