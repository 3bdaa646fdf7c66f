package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeProvider         = "PROVIDER_ERROR"
	ErrCodeNoEmbeddedChunks = "NO_EMBEDDED_CHUNKS"
)

// Validation errors
var (
	ErrInvalidOwnerKind          = NewDomainError(ErrCodeValidation, "invalid owner kind")
	ErrInvalidEmbeddingJobStatus = NewDomainError(ErrCodeValidation, "invalid embedding job status")
	ErrMissingRequiredField      = NewDomainError(ErrCodeValidation, "missing required field")
	ErrEmptyQuery                = NewDomainError(ErrCodeValidation, "query text is required")
	ErrEmptyDocument             = NewDomainError(ErrCodeValidation, "text is empty after normalization")
	ErrDuplicateChunkIndex       = NewDomainError(ErrCodeValidation, "chunk index already exists for owner")
	ErrNonContiguousChunkIndex   = NewDomainError(ErrCodeValidation, "chunk indexes must run 0..n-1 without gaps")
	ErrDimensionMismatch         = NewDomainError(ErrCodeValidation, "embedding dimensionality does not match")
)

// Not found errors
var (
	ErrChunkNotFound        = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrSourceNotFound       = NewDomainError(ErrCodeNotFound, "archived document source not found")
	ErrEmbeddingJobNotFound = NewDomainError(ErrCodeNotFound, "embedding job not found")
)

// ErrNoEmbeddedChunks is returned by retrieval when the owner has nothing
// searchable yet, either because nothing was ingested or every chunk is
// still pending backfill.
var ErrNoEmbeddedChunks = NewDomainError(ErrCodeNoEmbeddedChunks, "owner has no embedded chunks")

// Authorization errors
var (
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Provider errors
var (
	ErrEmbeddingCredentials = NewDomainError(ErrCodeConfiguration, "embedding provider credential missing or invalid")
	ErrEmbeddingCount       = NewDomainError(ErrCodeProvider, "embedding provider returned wrong number of vectors")
	ErrWrongDimensions      = NewDomainError(ErrCodeProvider, "embedding provider returned wrong dimensionality")
)

// Operation errors
var (
	ErrSourceArchiveDisabled = NewDomainError(ErrCodeInvalidOperation, "document source archive not configured")
	ErrStorageOperationFail  = NewDomainError(ErrCodeInternalError, "storage operation failed")
)

// BatchError reports a failed embedding batch and the input positions it covered.
type BatchError struct {
	BatchIndex int
	Indexes    []int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding batch %d failed (%d chunks affected): %v", e.BatchIndex, len(e.Indexes), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// StoreError reports a datastore failure with the operation name and the
// number of rows it was meant to touch.
type StoreError struct {
	Op       string
	Affected int
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s failed (%d affected): %v", e.Op, e.Affected, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the domain error code carried by err, or ErrCodeInternalError.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternalError
}

// IsConfigurationError reports whether err is a configuration-kind error.
func IsConfigurationError(err error) bool {
	return err != nil && ErrorCode(err) == ErrCodeConfiguration
}
