package types

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingJob is the queue message asking a worker to process one key.
type ProcessingJob struct {
	JobID     string    `json:"job_id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	Attempt   int       `json:"attempt"`
}

func NewProcessingJob(key string, attempt int) ProcessingJob {
	return ProcessingJob{
		JobID:     uuid.NewString(),
		Key:       key,
		CreatedAt: time.Now().UTC(),
		Attempt:   attempt,
	}
}
