package types

import "errors"

var (
	// ErrNotFound is returned when no record or object exists for a key
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a status precondition does not hold
	ErrConflict = errors.New("conflict")

	// ErrAlreadyExists is returned when creating a record for a key that already has one
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTransition is returned for status edges the pipeline never takes
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotReady is returned when the processed variant is requested too early
	ErrNotReady = errors.New("processed file not ready")

	// ErrStore wraps transient object store failures
	ErrStore = errors.New("object store error")

	// ErrRecognition wraps failures of the recognition capability
	ErrRecognition = errors.New("recognition failed")

	// ErrExhausted marks a file whose retries have run out
	ErrExhausted = errors.New("retries exhausted")

	// ErrInvalidInput is returned for malformed keys, sizes or variants
	ErrInvalidInput = errors.New("invalid input")
)
