package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/smurching/cloudnotes/internal/types"
)

const scyllaSchema = `
CREATE TABLE IF NOT EXISTS file_records (
    key text PRIMARY KEY,
    status text,
    original_size bigint,
    processed_key text,
    attempts int,
    last_error text,
    created_at timestamp,
    updated_at timestamp
)`

const scyllaStatusIndex = `CREATE INDEX IF NOT EXISTS file_records_status_idx ON file_records (status)`

const scyllaColumns = `key, status, original_size, processed_key, attempts, last_error, created_at, updated_at`

// serialRead reads through Paxos so a read after an LWT sees the committed row.
const serialRead = gocql.Consistency(gocql.Serial)

// maxCASRounds bounds the read-then-conditional-update loops used when a
// mutation also depends on the attempts counter.
const maxCASRounds = 8

// ScyllaTracker keeps records in ScyllaDB and serializes mutations per key with
// lightweight transactions (IF conditions).
type ScyllaTracker struct {
	session *gocql.Session
	now     func() time.Time
}

func NewScyllaTracker(session *gocql.Session) *ScyllaTracker {
	return &ScyllaTracker{session: session, now: time.Now}
}

// EnsureSchema creates the table and the status index used by ListStale.
func (s *ScyllaTracker) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{scyllaSchema, scyllaStatusIndex} {
		if err := s.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply scylla schema: %w", err)
		}
	}
	return nil
}

func (s *ScyllaTracker) Create(ctx context.Context, key string, size int64) (types.FileRecord, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	rec := types.FileRecord{
		Key:          key,
		Status:       types.StatusUploaded,
		OriginalSize: size,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	applied, err := s.session.Query(
		`INSERT INTO file_records (key, status, original_size, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?) IF NOT EXISTS`,
		key, string(rec.Status), size, now, now,
	).WithContext(ctx).MapScanCAS(map[string]any{})
	if err != nil {
		return types.FileRecord{}, fmt.Errorf("failed to create record %s: %w", key, err)
	}
	if !applied {
		return types.FileRecord{}, fmt.Errorf("%s: %w", key, types.ErrAlreadyExists)
	}
	return rec, nil
}

func (s *ScyllaTracker) Get(ctx context.Context, key string) (types.FileRecord, error) {
	return s.get(ctx, key, gocql.Quorum)
}

func (s *ScyllaTracker) Transition(ctx context.Context, key string, from, to types.Status) (types.FileRecord, error) {
	if err := checkTransition(key, from, to); err != nil {
		return types.FileRecord{}, err
	}
	return s.cas(ctx, key, from,
		`UPDATE file_records SET status = ?, updated_at = ? WHERE key = ? IF status = ?`,
		string(to), s.stamp(), key, string(from),
	)
}

func (s *ScyllaTracker) Requeue(ctx context.Context, key, cause string) (types.FileRecord, error) {
	return s.bump(ctx, key, func(rec types.FileRecord) (string, []any, error) {
		if rec.Status != types.StatusProcessing {
			return "", nil, conflict(key, types.StatusProcessing, rec.Status)
		}
		return `UPDATE file_records SET status = ?, attempts = ?, last_error = ?, updated_at = ?
			WHERE key = ? IF status = ? AND attempts = ?`,
			[]any{string(types.StatusQueued), rec.Attempts + 1, cause, s.stamp(), key, string(rec.Status), rec.Attempts},
			nil
	})
}

func (s *ScyllaTracker) MarkProcessed(ctx context.Context, key, processedKey string) (types.FileRecord, error) {
	return s.cas(ctx, key, types.StatusProcessing,
		`UPDATE file_records SET status = ?, processed_key = ?, last_error = null, updated_at = ?
		 WHERE key = ? IF status = ?`,
		string(types.StatusProcessed), processedKey, s.stamp(), key, string(types.StatusProcessing),
	)
}

func (s *ScyllaTracker) RecordFailure(ctx context.Context, key, cause string) (types.FileRecord, error) {
	return s.bump(ctx, key, func(rec types.FileRecord) (string, []any, error) {
		if !canFail(rec.Status) {
			return "", nil, fmt.Errorf("%s: %w: cannot fail from %s", key, types.ErrConflict, rec.Status)
		}
		return `UPDATE file_records SET status = ?, attempts = ?, last_error = ?, updated_at = ?
			WHERE key = ? IF status = ? AND attempts = ?`,
			[]any{string(types.StatusFailed), rec.Attempts + 1, cause, s.stamp(), key, string(rec.Status), rec.Attempts},
			nil
	})
}

func (s *ScyllaTracker) Reset(ctx context.Context, key string, size int64) (types.FileRecord, error) {
	return s.cas(ctx, key, types.StatusFailed,
		`UPDATE file_records SET status = ?, original_size = ?, attempts = 0,
		 last_error = null, processed_key = null, updated_at = ?
		 WHERE key = ? IF status = ?`,
		string(types.StatusUploaded), size, s.stamp(), key, string(types.StatusFailed),
	)
}

func (s *ScyllaTracker) Remove(ctx context.Context, key string, from types.Status) error {
	previous := map[string]any{}
	applied, err := s.session.Query(
		`DELETE FROM file_records WHERE key = ? IF status = ?`, key, string(from),
	).WithContext(ctx).MapScanCAS(previous)
	if err != nil {
		return fmt.Errorf("failed to remove record %s: %w", key, err)
	}
	if applied {
		return nil
	}
	return casMiss(key, from, previous)
}

// ListStale filters on the secondary status index; updated_at is not part of
// the key so the range condition needs ALLOW FILTERING. Rows are stamped by the
// writing process, so hosts sharing a cluster must keep their clocks in sync.
func (s *ScyllaTracker) ListStale(ctx context.Context, status types.Status, olderThan time.Duration, limit int) ([]types.FileRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	before := s.now().Add(-olderThan)

	iter := s.session.Query(
		`SELECT `+scyllaColumns+` FROM file_records WHERE status = ? AND updated_at < ? LIMIT ? ALLOW FILTERING`,
		string(status), before.UTC(), limit,
	).WithContext(ctx).Iter()

	var records []types.FileRecord
	for {
		rec, ok := scanScylla(iter)
		if !ok {
			break
		}
		records = append(records, rec)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list stale records: %w", err)
	}
	return records, nil
}

func (s *ScyllaTracker) get(ctx context.Context, key string, consistency gocql.Consistency) (types.FileRecord, error) {
	iter := s.session.Query(
		`SELECT `+scyllaColumns+` FROM file_records WHERE key = ?`, key,
	).WithContext(ctx).Consistency(consistency).Iter()

	rec, ok := scanScylla(iter)
	if err := iter.Close(); err != nil {
		return types.FileRecord{}, fmt.Errorf("failed to get record %s: %w", key, err)
	}
	if !ok {
		return types.FileRecord{}, notFound(key)
	}
	return rec, nil
}

// cas applies a single conditional statement and reads the committed row back
// with SERIAL consistency.
func (s *ScyllaTracker) cas(ctx context.Context, key string, from types.Status, stmt string, args ...any) (types.FileRecord, error) {
	previous := map[string]any{}
	applied, err := s.session.Query(stmt, args...).WithContext(ctx).MapScanCAS(previous)
	if err != nil {
		return types.FileRecord{}, fmt.Errorf("failed to update record %s: %w", key, err)
	}
	if !applied {
		return types.FileRecord{}, casMiss(key, from, previous)
	}
	return s.get(ctx, key, serialRead)
}

// bump handles mutations that increment attempts: read the row, then apply a
// statement conditioned on both status and the attempts value that was read.
func (s *ScyllaTracker) bump(ctx context.Context, key string, build func(types.FileRecord) (string, []any, error)) (types.FileRecord, error) {
	for round := 0; round < maxCASRounds; round++ {
		rec, err := s.get(ctx, key, serialRead)
		if err != nil {
			return types.FileRecord{}, err
		}

		stmt, args, err := build(rec)
		if err != nil {
			return types.FileRecord{}, err
		}

		applied, err := s.session.Query(stmt, args...).WithContext(ctx).MapScanCAS(map[string]any{})
		if err != nil {
			return types.FileRecord{}, fmt.Errorf("failed to update record %s: %w", key, err)
		}
		if applied {
			return s.get(ctx, key, serialRead)
		}
	}
	return types.FileRecord{}, fmt.Errorf("%s: %w: too much contention", key, types.ErrConflict)
}

func (s *ScyllaTracker) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func casMiss(key string, from types.Status, previous map[string]any) error {
	current, ok := previous["status"].(string)
	if !ok || current == "" {
		return notFound(key)
	}
	return conflict(key, from, types.Status(current))
}

func scanScylla(iter *gocql.Iter) (types.FileRecord, bool) {
	var (
		rec          types.FileRecord
		status       string
		processedKey *string
		lastError    *string
	)

	if !iter.Scan(
		&rec.Key,
		&status,
		&rec.OriginalSize,
		&processedKey,
		&rec.Attempts,
		&lastError,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	) {
		return types.FileRecord{}, false
	}

	rec.Status = types.Status(status)
	if processedKey != nil {
		rec.ProcessedKey = *processedKey
	}
	if lastError != nil {
		rec.LastError = *lastError
	}
	return rec, true
}
