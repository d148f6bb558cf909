package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smurching/cloudnotes/internal/types"
)

type MemoryTracker struct {
	mu      sync.Mutex
	records map[string]types.FileRecord
	now     func() time.Time
}

type MemoryOption func(*MemoryTracker)

// WithClock replaces time.Now, mainly so tests can age records.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryTracker) {
		m.now = now
	}
}

func NewMemoryTracker(opts ...MemoryOption) *MemoryTracker {
	m := &MemoryTracker{
		records: make(map[string]types.FileRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryTracker) Create(ctx context.Context, key string, size int64) (types.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[key]; ok {
		return types.FileRecord{}, fmt.Errorf("%s: %w", key, types.ErrAlreadyExists)
	}

	now := m.now()
	rec := types.FileRecord{
		Key:          key,
		Status:       types.StatusUploaded,
		OriginalSize: size,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.records[key] = rec
	return rec, nil
}

func (m *MemoryTracker) Get(ctx context.Context, key string) (types.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return types.FileRecord{}, notFound(key)
	}
	return rec, nil
}

func (m *MemoryTracker) Transition(ctx context.Context, key string, from, to types.Status) (types.FileRecord, error) {
	if err := checkTransition(key, from, to); err != nil {
		return types.FileRecord{}, err
	}
	return m.update(key, from, func(rec *types.FileRecord) {
		rec.Status = to
	})
}

func (m *MemoryTracker) Requeue(ctx context.Context, key, cause string) (types.FileRecord, error) {
	return m.update(key, types.StatusProcessing, func(rec *types.FileRecord) {
		rec.Status = types.StatusQueued
		rec.Attempts++
		rec.LastError = cause
	})
}

func (m *MemoryTracker) MarkProcessed(ctx context.Context, key, processedKey string) (types.FileRecord, error) {
	return m.update(key, types.StatusProcessing, func(rec *types.FileRecord) {
		rec.Status = types.StatusProcessed
		rec.ProcessedKey = processedKey
		rec.LastError = ""
	})
}

func (m *MemoryTracker) RecordFailure(ctx context.Context, key, cause string) (types.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return types.FileRecord{}, notFound(key)
	}
	if !canFail(rec.Status) {
		return types.FileRecord{}, fmt.Errorf("%s: %w: cannot fail from %s", key, types.ErrConflict, rec.Status)
	}

	rec.Status = types.StatusFailed
	rec.Attempts++
	rec.LastError = cause
	rec.UpdatedAt = m.now()
	m.records[key] = rec
	return rec, nil
}

func (m *MemoryTracker) Reset(ctx context.Context, key string, size int64) (types.FileRecord, error) {
	return m.update(key, types.StatusFailed, func(rec *types.FileRecord) {
		rec.Status = types.StatusUploaded
		rec.OriginalSize = size
		rec.Attempts = 0
		rec.LastError = ""
		rec.ProcessedKey = ""
	})
}

func (m *MemoryTracker) Remove(ctx context.Context, key string, from types.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return notFound(key)
	}
	if rec.Status != from {
		return conflict(key, from, rec.Status)
	}
	delete(m.records, key)
	return nil
}

func (m *MemoryTracker) ListStale(ctx context.Context, status types.Status, olderThan time.Duration, limit int) ([]types.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.now().Add(-olderThan)
	var stale []types.FileRecord
	for _, rec := range m.records {
		if rec.Status == status && rec.UpdatedAt.Before(before) {
			stale = append(stale, rec)
		}
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (m *MemoryTracker) update(key string, from types.Status, apply func(*types.FileRecord)) (types.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return types.FileRecord{}, notFound(key)
	}
	if rec.Status != from {
		return types.FileRecord{}, conflict(key, from, rec.Status)
	}

	apply(&rec)
	rec.UpdatedAt = m.now()
	m.records[key] = rec
	return rec, nil
}
