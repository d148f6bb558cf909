package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/smurching/cloudnotes/internal/storage"
	"github.com/smurching/cloudnotes/internal/types"
	"github.com/smurching/cloudnotes/internal/worker"
)

type ListResponse struct {
	Files []storage.ObjectInfo `json:"files"`
}

func (f *Files) Status(ctx context.Context, userID, key string) (types.FileRecord, error) {
	objectKey, err := objectKeyFor(userID, key)
	if err != nil {
		return types.FileRecord{}, err
	}
	return f.tracker.Get(ctx, objectKey)
}

// List returns the caller's originals, named relative to their prefix.
func (f *Files) List(ctx context.Context, userID string) (*ListResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userID is required", types.ErrInvalidInput)
	}

	prefix := userID + "/"
	objects, err := f.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files := make([]storage.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Name, types.ProcessedSuffix) {
			continue
		}
		obj.Name = strings.TrimPrefix(obj.Name, prefix)
		files = append(files, obj)
	}
	return &ListResponse{Files: files}, nil
}

// Delete removes the record first so no worker can claim the key, then the
// original and processed objects.
func (f *Files) Delete(ctx context.Context, userID, key string) error {
	objectKey, err := objectKeyFor(userID, key)
	if err != nil {
		return err
	}

	rec, err := f.tracker.Get(ctx, objectKey)
	switch {
	case errors.Is(err, types.ErrNotFound):
		// an upload that was never registered
		return f.store.Delete(ctx, objectKey)
	case err != nil:
		return err
	case rec.Status == types.StatusProcessing:
		return fmt.Errorf("%w: %s is being processed", types.ErrConflict, key)
	}

	if err := f.tracker.Remove(ctx, objectKey, rec.Status); err != nil {
		return err
	}

	for _, k := range []string{objectKey, rec.ProcessedKey} {
		if k == "" {
			continue
		}
		if err := f.store.Delete(ctx, k); err != nil && !errors.Is(err, types.ErrNotFound) {
			log.Printf("⚠️  record %s removed but object %s remains: %v", objectKey, k, err)
		}
	}
	return nil
}

// Retry puts a failed key back on the queue. Attempts are kept, so the key
// gets one more attempt before it fails again.
func (f *Files) Retry(ctx context.Context, objectKey string) (types.FileRecord, error) {
	rec, err := f.tracker.Transition(ctx, objectKey, types.StatusFailed, types.StatusQueued)
	if err != nil {
		return types.FileRecord{}, err
	}

	if err := f.queue.Publish(ctx, types.NewProcessingJob(objectKey, rec.Attempts)); err != nil {
		log.Printf("⚠️  %s requeued by operator but job publish failed: %v", objectKey, err)
	}
	return rec, nil
}

func (f *Files) Sweep(ctx context.Context) (worker.SweepReport, error) {
	if f.sweeper == nil {
		return worker.SweepReport{}, errors.New("sweeper not configured")
	}
	return f.sweeper.Sweep(ctx)
}
