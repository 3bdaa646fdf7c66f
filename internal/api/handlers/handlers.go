package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/docrag/internal/api"
	"github.com/cloo-solutions/docrag/internal/api/middleware"
	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/service"
)

// IngestionService is the write side of the pipeline.
type IngestionService interface {
	DefaultOptions() domain.IngestOptions
	ProcessDocument(ctx context.Context, in service.DocumentInput) (*domain.IngestResult, error)
	ProcessKnowledgeItem(ctx context.Context, in service.KnowledgeInput) (*domain.IngestResult, error)
	ReingestDocument(ctx context.Context, documentID, actorID string, opts domain.IngestOptions) (*domain.IngestResult, error)
	DeleteOwner(ctx context.Context, owner domain.Owner) (int64, error)
	ListChunks(ctx context.Context, owner domain.Owner, cursor string, limit int) (*service.ChunkPage, error)
	UpdateChunkContent(ctx context.Context, chunkID, text string) (*domain.Chunk, error)
	UpdateEmbeddings(ctx context.Context, chunkIDs []string) (int, error)
}

// Retriever answers similarity queries.
type Retriever interface {
	Retrieve(ctx context.Context, in service.RetrieveInput) ([]*domain.RetrievedChunk, error)
}

type ChunkResponse struct {
	ID               string               `json:"id"`
	OwnerKind        string               `json:"ownerKind"`
	OwnerID          string               `json:"ownerId"`
	Index            int                  `json:"index"`
	Text             string               `json:"text"`
	Metadata         domain.ChunkMetadata `json:"metadata"`
	Embedded         bool                 `json:"embedded"`
	EmbeddingModel   string               `json:"embeddingModel,omitempty"`
	EmbeddingPending bool                 `json:"embeddingPending"`
	CreatedAt        string               `json:"createdAt"`
	UpdatedAt        string               `json:"updatedAt"`
}

func chunkToResponse(c *domain.Chunk) *ChunkResponse {
	return &ChunkResponse{
		ID:               c.ID,
		OwnerKind:        string(c.Owner.Kind),
		OwnerID:          c.Owner.ID,
		Index:            c.Index,
		Text:             c.Text,
		Metadata:         c.Metadata,
		Embedded:         c.Embedded(),
		EmbeddingModel:   c.EmbeddingModel,
		EmbeddingPending: c.EmbeddingPending,
		CreatedAt:        c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// actorOrUnauthorized returns the authenticated actor, writing a 401 when
// there is none.
func actorOrUnauthorized(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := middleware.GetActorID(r.Context())
	if actorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return actorID, true
}

func ownerFromPath(kind domain.OwnerKind, r *http.Request) domain.Owner {
	return domain.Owner{Kind: kind, ID: chi.URLParam(r, "id")}
}

// decodeJSON writes the error response itself and reports whether decoding
// succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// resolveOptions overlays the request's options onto the service defaults,
// so omitted fields keep their default rather than the zero value.
func resolveOptions(defaults domain.IngestOptions, raw json.RawMessage) (domain.IngestOptions, error) {
	opts := defaults
	if len(raw) == 0 || string(raw) == "null" {
		return opts, nil
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// ingestStatus is 201 when every chunk was embedded and 202 when some are
// waiting for backfill.
func ingestStatus(res *domain.IngestResult) int {
	if res.Success {
		return http.StatusCreated
	}
	return http.StatusAccepted
}

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
