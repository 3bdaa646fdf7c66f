package domain

// Ingestion defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// IngestOptions tune a single ingestion. Zero sizes fall back to the
// service defaults.
type IngestOptions struct {
	ChunkSize          int  `json:"chunkSize,omitempty"`
	ChunkOverlap       int  `json:"chunkOverlap,omitempty"`
	GenerateEmbeddings bool `json:"generateEmbeddings"`
	ExtractMetadata    bool `json:"extractMetadata"`
}

// DefaultIngestOptions returns options with embeddings and metadata enabled.
func DefaultIngestOptions() IngestOptions {
	return IngestOptions{
		ChunkSize:          DefaultChunkSize,
		ChunkOverlap:       DefaultChunkOverlap,
		GenerateEmbeddings: true,
		ExtractMetadata:    true,
	}
}

// IngestResult summarizes an ingestion. Success is false when embedding was
// requested and the provider failed for some chunks; those are counted in
// PendingCount. Chunks stored with embeddings turned off are neither
// embedded nor pending and leave Success true. ChunkCount is the number of
// chunks actually persisted.
type IngestResult struct {
	Success       bool   `json:"success"`
	ChunkCount    int    `json:"chunkCount"`
	EmbeddedCount int    `json:"embeddedCount"`
	PendingCount  int    `json:"pendingCount"`
	FailedBatch   *int   `json:"failedBatch,omitempty"`
	Error         string `json:"error,omitempty"`
}
