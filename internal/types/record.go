package types

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// ProcessedSuffix is appended to an original key to name its processed variant.
const ProcessedSuffix = ".processed"

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusUploaded, StatusQueued, StatusProcessing, StatusProcessed, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// CanTransition reports whether a plain compare-and-swap may move a record
// from one status to another. Entering processed or failed goes through the
// dedicated tracker operations instead.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusUploaded:
		return to == StatusQueued
	case StatusQueued:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusQueued
	case StatusFailed:
		return to == StatusQueued
	}
	return false
}

type FileRecord struct {
	Key          string    `json:"key"`
	Status       Status    `json:"status"`
	OriginalSize int64     `json:"original_size"`
	ProcessedKey string    `json:"processed_key,omitempty"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func ProcessedKeyFor(key string) string {
	return key + ProcessedSuffix
}

type Operation string

const (
	OperationRead  Operation = "read"
	OperationWrite Operation = "write"
)

type SignedURL struct {
	Key       string    `json:"key"`
	Operation Operation `json:"operation"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Variant string

const (
	VariantOriginal  Variant = "original"
	VariantProcessed Variant = "processed"
)

func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case "":
		return VariantOriginal, nil
	case VariantOriginal, VariantProcessed:
		return v, nil
	}
	return "", fmt.Errorf("%w: variant must be original or processed", ErrInvalidInput)
}

// ProcessedDocument is the payload stored under a processed key.
type ProcessedDocument struct {
	Key         string    `json:"key"`
	SourceKey   string    `json:"source_key"`
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
	Engine      string    `json:"engine"`
	Pages       int       `json:"pages"`
	ContentType string    `json:"content_type"`
	ProcessedAt time.Time `json:"processed_at"`
}
