package storage

import (
	"context"
	"time"

	"github.com/smurching/cloudnotes/internal/types"
)

// ObjectStore is a synchronous client for the remote bucket. Implementations
// never retry and never cache.
type ObjectStore interface {
	// Get returns the object bytes, or types.ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the object, replacing any previous version
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Delete removes the object, or returns types.ErrNotFound
	Delete(ctx context.Context, key string) error

	// SignedURL builds a time-limited credential without any network call
	SignedURL(key string, op types.Operation, ttl time.Duration) (types.SignedURL, error)

	// List returns the objects under a prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

type ObjectInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}
