package domain

import (
	"fmt"
	"time"
)

// EmbeddingJobStatus represents the status of a backfill job
type EmbeddingJobStatus string

const (
	EmbeddingJobStatusPending    EmbeddingJobStatus = "pending"
	EmbeddingJobStatusProcessing EmbeddingJobStatus = "processing"
	EmbeddingJobStatusCompleted  EmbeddingJobStatus = "completed"
	EmbeddingJobStatusFailed     EmbeddingJobStatus = "failed"
)

// EmbeddingJob asks the worker to embed every pending chunk of an owner.
type EmbeddingJob struct {
	ID          string
	Owner       Owner
	Status      EmbeddingJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewEmbeddingJob creates a new EmbeddingJob instance
func NewEmbeddingJob(
	id string,
	owner Owner,
	status EmbeddingJobStatus,
	retries int32,
	errMsg string,
	createdAt time.Time,
	processedAt *time.Time,
) *EmbeddingJob {
	return &EmbeddingJob{
		ID:          id,
		Owner:       owner,
		Status:      status,
		Retries:     retries,
		Error:       errMsg,
		CreatedAt:   createdAt,
		ProcessedAt: processedAt,
	}
}

// ValidateEmbeddingJob validates an EmbeddingJob instance
func ValidateEmbeddingJob(j *EmbeddingJob) error {
	if j == nil {
		return fmt.Errorf("embedding job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("embedding job ID is required")
	}

	if err := ValidateOwner(j.Owner); err != nil {
		return fmt.Errorf("embedding job owner: %w", err)
	}

	if !IsValidEmbeddingJobStatus(j.Status) {
		return fmt.Errorf("%w: %s", ErrInvalidEmbeddingJobStatus, j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("embedding job Retries cannot be negative")
	}

	return nil
}

// IsValidEmbeddingJobStatus checks if an EmbeddingJobStatus is valid
func IsValidEmbeddingJobStatus(s EmbeddingJobStatus) bool {
	switch s {
	case EmbeddingJobStatusPending, EmbeddingJobStatusProcessing,
		EmbeddingJobStatusCompleted, EmbeddingJobStatusFailed:
		return true
	}
	return false
}

// Embeddings is one validated provider response: a vector per input, in
// input order, plus the tokens billed for the call.
type Embeddings struct {
	Vectors [][]float32
	Tokens  int
	Model   string
}
