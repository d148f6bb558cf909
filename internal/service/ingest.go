package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/smurching/cloudnotes/internal/types"
)

// RegisterUpload is the only way work enters the pipeline. A key may be
// registered once; after a terminal failure it may be registered again,
// which resets its attempts.
func (f *Files) RegisterUpload(ctx context.Context, userID, key string, size int64) (types.FileRecord, error) {
	objectKey, err := objectKeyFor(userID, key)
	if err != nil {
		return types.FileRecord{}, err
	}
	if err := f.checkSize(size); err != nil {
		return types.FileRecord{}, err
	}

	rec, err := f.tracker.Create(ctx, objectKey, size)
	if errors.Is(err, types.ErrAlreadyExists) {
		rec, err = f.reregister(ctx, objectKey, size)
	}
	if err != nil {
		f.metrics.Registrations.WithLabelValues("rejected").Inc()
		return types.FileRecord{}, err
	}

	rec, err = f.tracker.Transition(ctx, objectKey, types.StatusUploaded, types.StatusQueued)
	if err != nil {
		f.abandon(ctx, objectKey, err)
		return types.FileRecord{}, err
	}

	if err := f.queue.Publish(ctx, types.NewProcessingJob(objectKey, rec.Attempts)); err != nil {
		// the record is queued; the sweeper republishes it
		log.Printf("⚠️  %s registered but job publish failed: %v", objectKey, err)
	}

	f.metrics.Registrations.WithLabelValues("accepted").Inc()
	return rec, nil
}

// abandon parks a key that could not be queued in failed, so the caller can
// register it again. If that also fails the sweeper queues it later.
func (f *Files) abandon(ctx context.Context, objectKey string, cause error) {
	if errors.Is(cause, types.ErrConflict) || errors.Is(cause, types.ErrNotFound) {
		// someone else moved or removed the record
		return
	}
	if _, err := f.tracker.RecordFailure(context.WithoutCancel(ctx), objectKey, "queueing failed: "+cause.Error()); err != nil {
		log.Printf("⚠️  %s left in uploaded: %v", objectKey, err)
	}
}

func (f *Files) reregister(ctx context.Context, objectKey string, size int64) (types.FileRecord, error) {
	existing, err := f.tracker.Get(ctx, objectKey)
	if err != nil {
		return types.FileRecord{}, err
	}
	if existing.Status != types.StatusFailed {
		return types.FileRecord{}, fmt.Errorf("%w: %s is already %s", types.ErrConflict, objectKey, existing.Status)
	}
	return f.tracker.Reset(ctx, objectKey, size)
}

// UploadContent stores the bytes on the caller's behalf and registers them.
func (f *Files) UploadContent(ctx context.Context, userID, key string, data []byte, contentType string) (types.FileRecord, error) {
	objectKey, err := objectKeyFor(userID, key)
	if err != nil {
		return types.FileRecord{}, err
	}
	if err := f.checkSize(int64(len(data))); err != nil {
		return types.FileRecord{}, err
	}

	// refuse before touching the store so queued bytes are never replaced
	rec, err := f.tracker.Get(ctx, objectKey)
	switch {
	case errors.Is(err, types.ErrNotFound):
	case err != nil:
		return types.FileRecord{}, err
	case rec.Status != types.StatusFailed:
		return types.FileRecord{}, fmt.Errorf("%w: %s is already %s", types.ErrConflict, key, rec.Status)
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if err := f.store.Put(ctx, objectKey, data, contentType); err != nil {
		return types.FileRecord{}, err
	}

	return f.RegisterUpload(ctx, userID, key, int64(len(data)))
}

func (f *Files) checkSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("%w: size must be positive", types.ErrInvalidInput)
	}
	if f.cfg.MaxUploadBytes > 0 && size > f.cfg.MaxUploadBytes {
		return fmt.Errorf("%w: size %d exceeds limit of %d bytes", types.ErrInvalidInput, size, f.cfg.MaxUploadBytes)
	}
	return nil
}
