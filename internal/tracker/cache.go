package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smurching/cloudnotes/internal/types"
)

const cachePrefix = "cloudnotes:record:"

// CachedTracker serves Get from Redis when it can. Mutations always go to the
// wrapped tracker first; the cache entry is then replaced with the result or
// dropped on error. Redis failures degrade to the backend, never to an error.
type CachedTracker struct {
	Tracker
	client redis.Cmdable
	ttl    time.Duration
}

func NewCachedTracker(backend Tracker, client redis.Cmdable, ttl time.Duration) *CachedTracker {
	return &CachedTracker{Tracker: backend, client: client, ttl: ttl}
}

func (c *CachedTracker) Get(ctx context.Context, key string) (types.FileRecord, error) {
	raw, err := c.client.Get(ctx, cachePrefix+key).Bytes()
	if err == nil {
		var rec types.FileRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			return rec, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("record cache read failed for %s: %v", key, err)
	}

	rec, err := c.Tracker.Get(ctx, key)
	if err != nil {
		return rec, err
	}
	c.store(ctx, rec)
	return rec, nil
}

func (c *CachedTracker) Create(ctx context.Context, key string, size int64) (types.FileRecord, error) {
	return c.refresh(ctx, key)(c.Tracker.Create(ctx, key, size))
}

func (c *CachedTracker) Transition(ctx context.Context, key string, from, to types.Status) (types.FileRecord, error) {
	return c.refresh(ctx, key)(c.Tracker.Transition(ctx, key, from, to))
}

func (c *CachedTracker) Requeue(ctx context.Context, key, cause string) (types.FileRecord, error) {
	return c.refresh(ctx, key)(c.Tracker.Requeue(ctx, key, cause))
}

func (c *CachedTracker) MarkProcessed(ctx context.Context, key, processedKey string) (types.FileRecord, error) {
	return c.refresh(ctx, key)(c.Tracker.MarkProcessed(ctx, key, processedKey))
}

func (c *CachedTracker) RecordFailure(ctx context.Context, key, cause string) (types.FileRecord, error) {
	return c.refresh(ctx, key)(c.Tracker.RecordFailure(ctx, key, cause))
}

func (c *CachedTracker) Reset(ctx context.Context, key string, size int64) (types.FileRecord, error) {
	return c.refresh(ctx, key)(c.Tracker.Reset(ctx, key, size))
}

func (c *CachedTracker) Remove(ctx context.Context, key string, from types.Status) error {
	err := c.Tracker.Remove(ctx, key, from)
	c.invalidate(ctx, key)
	return err
}

func (c *CachedTracker) refresh(ctx context.Context, key string) func(types.FileRecord, error) (types.FileRecord, error) {
	return func(rec types.FileRecord, err error) (types.FileRecord, error) {
		if err != nil {
			c.invalidate(ctx, key)
			return rec, err
		}
		c.store(ctx, rec)
		return rec, nil
	}
}

func (c *CachedTracker) store(ctx context.Context, rec types.FileRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cachePrefix+rec.Key, raw, c.ttl).Err(); err != nil {
		log.Printf("record cache write failed for %s: %v", rec.Key, err)
	}
}

func (c *CachedTracker) invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, cachePrefix+key).Err(); err != nil {
		log.Printf("record cache invalidate failed for %s: %v", key, err)
	}
}

// NewRedisClient connects and pings the cache.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
