package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smurching/cloudnotes/internal/types"
)

const recordColumns = `key, status, original_size, processed_key, attempts, last_error, created_at, updated_at`

const createRecord = `
INSERT INTO file_records (key, status, original_size)
VALUES ($1, 'uploaded', $2)
ON CONFLICT (key) DO NOTHING
RETURNING ` + recordColumns

const getRecord = `SELECT ` + recordColumns + ` FROM file_records WHERE key = $1`

const transitionRecord = `
UPDATE file_records SET status = $3, updated_at = NOW()
WHERE key = $1 AND status = $2
RETURNING ` + recordColumns

const requeueRecord = `
UPDATE file_records
SET status = 'queued', attempts = attempts + 1, last_error = $2, updated_at = NOW()
WHERE key = $1 AND status = 'processing'
RETURNING ` + recordColumns

const markProcessed = `
UPDATE file_records
SET status = 'processed', processed_key = $2, last_error = NULL, updated_at = NOW()
WHERE key = $1 AND status = 'processing'
RETURNING ` + recordColumns

const recordFailure = `
UPDATE file_records
SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
WHERE key = $1 AND status IN ('uploaded', 'queued', 'processing')
RETURNING ` + recordColumns

const resetRecord = `
UPDATE file_records
SET status = 'uploaded', original_size = $2, attempts = 0,
    last_error = NULL, processed_key = NULL, updated_at = NOW()
WHERE key = $1 AND status = 'failed'
RETURNING ` + recordColumns

const removeRecord = `DELETE FROM file_records WHERE key = $1 AND status = $2`

const listStale = `
SELECT ` + recordColumns + `
FROM file_records
WHERE status = $1 AND updated_at < NOW() - make_interval(secs => $2)
ORDER BY updated_at
LIMIT $3`

// PostgresTracker keeps records in the file_records table. Every mutation is a
// single conditional UPDATE, so the row lock makes it atomic per key.
type PostgresTracker struct {
	pool *pgxpool.Pool
}

func NewPostgresTracker(pool *pgxpool.Pool) *PostgresTracker {
	return &PostgresTracker{pool: pool}
}

func (p *PostgresTracker) Create(ctx context.Context, key string, size int64) (types.FileRecord, error) {
	rec, err := scanRecord(p.pool.QueryRow(ctx, createRecord, key, size))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.FileRecord{}, fmt.Errorf("%s: %w", key, types.ErrAlreadyExists)
	}
	if err != nil {
		return types.FileRecord{}, fmt.Errorf("failed to create record %s: %w", key, err)
	}
	return rec, nil
}

func (p *PostgresTracker) Get(ctx context.Context, key string) (types.FileRecord, error) {
	rec, err := scanRecord(p.pool.QueryRow(ctx, getRecord, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.FileRecord{}, notFound(key)
	}
	if err != nil {
		return types.FileRecord{}, fmt.Errorf("failed to get record %s: %w", key, err)
	}
	return rec, nil
}

func (p *PostgresTracker) Transition(ctx context.Context, key string, from, to types.Status) (types.FileRecord, error) {
	if err := checkTransition(key, from, to); err != nil {
		return types.FileRecord{}, err
	}
	return p.cas(ctx, key, from, transitionRecord, key, string(from), string(to))
}

func (p *PostgresTracker) Requeue(ctx context.Context, key, cause string) (types.FileRecord, error) {
	return p.cas(ctx, key, types.StatusProcessing, requeueRecord, key, cause)
}

func (p *PostgresTracker) MarkProcessed(ctx context.Context, key, processedKey string) (types.FileRecord, error) {
	return p.cas(ctx, key, types.StatusProcessing, markProcessed, key, processedKey)
}

func (p *PostgresTracker) RecordFailure(ctx context.Context, key, cause string) (types.FileRecord, error) {
	rec, err := scanRecord(p.pool.QueryRow(ctx, recordFailure, key, cause))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return types.FileRecord{}, fmt.Errorf("failed to record failure for %s: %w", key, err)
	}

	current, err := p.Get(ctx, key)
	if err != nil {
		return types.FileRecord{}, err
	}
	return types.FileRecord{}, fmt.Errorf("%s: %w: cannot fail from %s", key, types.ErrConflict, current.Status)
}

func (p *PostgresTracker) Reset(ctx context.Context, key string, size int64) (types.FileRecord, error) {
	return p.cas(ctx, key, types.StatusFailed, resetRecord, key, size)
}

func (p *PostgresTracker) Remove(ctx context.Context, key string, from types.Status) error {
	tag, err := p.pool.Exec(ctx, removeRecord, key, string(from))
	if err != nil {
		return fmt.Errorf("failed to remove record %s: %w", key, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return p.miss(ctx, key, from)
}

// ListStale ages records against the database clock, the same clock that
// stamps updated_at, so worker and sweeper hosts may drift freely.
func (p *PostgresTracker) ListStale(ctx context.Context, status types.Status, olderThan time.Duration, limit int) ([]types.FileRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.pool.Query(ctx, listStale, string(status), olderThan.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale records: %w", err)
	}
	defer rows.Close()

	var records []types.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stale records: %w", err)
	}
	return records, nil
}

// cas runs a conditional update and, when no row matched, reports whether
// the key was missing or in another status.
func (p *PostgresTracker) cas(ctx context.Context, key string, from types.Status, query string, args ...any) (types.FileRecord, error) {
	rec, err := scanRecord(p.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return types.FileRecord{}, fmt.Errorf("failed to update record %s: %w", key, err)
	}
	return types.FileRecord{}, p.miss(ctx, key, from)
}

func (p *PostgresTracker) miss(ctx context.Context, key string, from types.Status) error {
	current, err := p.Get(ctx, key)
	if err != nil {
		return err
	}
	return conflict(key, from, current.Status)
}

func scanRecord(row pgx.Row) (types.FileRecord, error) {
	var (
		rec          types.FileRecord
		status       string
		processedKey pgtype.Text
		lastError    pgtype.Text
	)

	err := row.Scan(
		&rec.Key,
		&status,
		&rec.OriginalSize,
		&processedKey,
		&rec.Attempts,
		&lastError,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return types.FileRecord{}, err
	}

	rec.Status = types.Status(status)
	rec.ProcessedKey = processedKey.String
	rec.LastError = lastError.String
	return rec, nil
}
