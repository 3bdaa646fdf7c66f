package domain

import (
	"fmt"
	"time"
)

// Chunk is a bounded, retrievable slice of an owner's text.
// EmbeddingPending marks chunks that should have a vector but do not yet,
// which makes them eligible for backfill.
type Chunk struct {
	ID               string
	Owner            Owner
	ActorID          string
	Text             string
	Index            int
	Metadata         ChunkMetadata
	Embedding        []float32
	EmbeddingModel   string
	EmbeddingPending bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Embedded reports whether the chunk carries a vector.
func (c *Chunk) Embedded() bool {
	return c.Embedding != nil
}

// RetrievedChunk is a similarity search hit.
type RetrievedChunk struct {
	ChunkID    string
	Index      int
	Text       string
	Metadata   ChunkMetadata
	Similarity float64
}

// SimilarityQuery asks for the K chunks of Owner closest to Embedding among
// those embedded with Model, keeping only hits with similarity at least
// MinSimilarity.
type SimilarityQuery struct {
	Owner         Owner
	Embedding     []float32
	Model         string
	K             int
	MinSimilarity float64
}

// DocumentSource is the raw text of a document kept for re-ingestion.
type DocumentSource struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// ValidateChunk validates a single chunk. dims is the configured embedding
// dimensionality; zero disables the dimension check.
func ValidateChunk(c *Chunk, dims int) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if err := ValidateOwner(c.Owner); err != nil {
		return err
	}

	if c.ActorID == "" {
		return fmt.Errorf("%w: chunk ActorID", ErrMissingRequiredField)
	}

	if c.Text == "" {
		return fmt.Errorf("%w: chunk Text", ErrMissingRequiredField)
	}

	if c.Index < 0 {
		return NewDomainError(ErrCodeValidation, "chunk Index cannot be negative")
	}

	if c.Embedding != nil && dims > 0 && len(c.Embedding) != dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(c.Embedding), dims)
	}

	return nil
}

// ValidateChunkSet validates a complete chunk set for one owner: every chunk
// is valid, all share the same owner and indices are exactly 0..n-1.
func ValidateChunkSet(chunks []*Chunk, dims int) error {
	if len(chunks) == 0 {
		return nil
	}

	owner := chunks[0].Owner
	seen := make([]bool, len(chunks))
	for _, c := range chunks {
		if err := ValidateChunk(c, dims); err != nil {
			return err
		}
		if c.Owner != owner {
			return NewDomainError(ErrCodeValidation, "chunk set spans more than one owner")
		}
		if c.Index < 0 || c.Index >= len(chunks) {
			return fmt.Errorf("%w: index %d in a set of %d", ErrNonContiguousChunkIndex, c.Index, len(chunks))
		}
		if seen[c.Index] {
			return fmt.Errorf("%w: index %d", ErrDuplicateChunkIndex, c.Index)
		}
		seen[c.Index] = true
	}

	return nil
}
