package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smurching/cloudnotes/internal/types"
)

type URLResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	ValidFor  string    `json:"valid_for"`
}

// IssueUploadURL signs a direct upload. Keys that are being processed or
// already have a processed derivative are refused so a client cannot swap the
// bytes under a worker.
func (f *Files) IssueUploadURL(ctx context.Context, userID, key string) (*URLResponse, error) {
	objectKey, err := objectKeyFor(userID, key)
	if err != nil {
		return nil, err
	}

	rec, err := f.tracker.Get(ctx, objectKey)
	switch {
	case errors.Is(err, types.ErrNotFound):
	case err != nil:
		return nil, err
	case rec.Status == types.StatusProcessing || rec.Status == types.StatusProcessed:
		return nil, fmt.Errorf("%w: %s is %s", types.ErrConflict, key, rec.Status)
	}

	return f.sign(objectKey, types.OperationWrite)
}

// IssueDownloadURL signs a read of the original, or of the processed
// derivative once the key has reached processed.
func (f *Files) IssueDownloadURL(ctx context.Context, userID, key string, variant types.Variant) (*URLResponse, error) {
	objectKey, err := objectKeyFor(userID, key)
	if err != nil {
		return nil, err
	}

	rec, err := f.tracker.Get(ctx, objectKey)
	if err != nil {
		return nil, err
	}

	switch variant {
	case types.VariantOriginal, "":
		return f.sign(objectKey, types.OperationRead)
	case types.VariantProcessed:
		if rec.Status != types.StatusProcessed {
			return nil, fmt.Errorf("%w: %s is %s", types.ErrNotReady, key, rec.Status)
		}
		return f.sign(rec.ProcessedKey, types.OperationRead)
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", types.ErrInvalidInput, variant)
	}
}

func (f *Files) sign(objectKey string, op types.Operation) (*URLResponse, error) {
	signed, err := f.store.SignedURL(objectKey, op, f.cfg.URLExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s URL: %w", op, err)
	}
	f.metrics.URLsIssued.WithLabelValues(string(op)).Inc()

	return &URLResponse{
		Key:       signed.Key,
		URL:       signed.URL,
		ExpiresAt: signed.ExpiresAt,
		ValidFor:  fmt.Sprintf("%.0f minutes", f.cfg.URLExpiry.Minutes()),
	}, nil
}

func objectKeyFor(userID, key string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: userID is required", types.ErrInvalidInput)
	}
	if strings.Contains(userID, "/") {
		return "", fmt.Errorf("%w: userID may not contain '/'", types.ErrInvalidInput)
	}
	if err := types.ValidateKey(key); err != nil {
		return "", err
	}
	return types.ObjectName(userID, key), nil
}
