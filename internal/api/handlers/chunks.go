package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/docrag/internal/api"
	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/service"
)

type ChunkHandler struct {
	svc       IngestionService
	retriever Retriever
}

func NewChunkHandler(svc IngestionService, retriever Retriever) *ChunkHandler {
	return &ChunkHandler{svc: svc, retriever: retriever}
}

type ChunkListResponse struct {
	Items   []*ChunkResponse `json:"items"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"hasMore"`
}

type DeleteChunksResponse struct {
	Deleted int64 `json:"deleted"`
}

type RetrieveRequest struct {
	Query         string   `json:"query"`
	K             int      `json:"k"`
	MinSimilarity *float64 `json:"minSimilarity"`
}

type RetrievedChunkResponse struct {
	ChunkID    string               `json:"chunkId"`
	Index      int                  `json:"index"`
	Text       string               `json:"text"`
	Metadata   domain.ChunkMetadata `json:"metadata"`
	Similarity float64              `json:"similarity"`
}

type RetrieveResponse struct {
	Results []*RetrievedChunkResponse `json:"results"`
}

type UpdateChunkRequest struct {
	Text string `json:"text"`
}

type UpdateEmbeddingsRequest struct {
	ChunkIDs []string `json:"chunkIds"`
}

type UpdateEmbeddingsResponse struct {
	Updated int `json:"updated"`
}

// List returns GET /{kind}/{id}/chunks for the given owner kind.
func (h *ChunkHandler) List(kind domain.OwnerKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorOrUnauthorized(w, r); !ok {
			return
		}

		page, err := h.svc.ListChunks(r.Context(), ownerFromPath(kind, r), r.URL.Query().Get("cursor"), queryInt(r, "limit"))
		if err != nil {
			api.HandleError(w, err)
			return
		}

		items := make([]*ChunkResponse, len(page.Items))
		for i, c := range page.Items {
			items[i] = chunkToResponse(c)
		}

		api.Success(w, http.StatusOK, ChunkListResponse{
			Items:   items,
			Cursor:  page.Cursor,
			HasMore: page.HasMore,
		})
	}
}

// Delete returns DELETE /{kind}/{id}/chunks for the given owner kind.
func (h *ChunkHandler) Delete(kind domain.OwnerKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorOrUnauthorized(w, r); !ok {
			return
		}

		n, err := h.svc.DeleteOwner(r.Context(), ownerFromPath(kind, r))
		if err != nil {
			api.HandleError(w, err)
			return
		}

		api.Success(w, http.StatusOK, DeleteChunksResponse{Deleted: n})
	}
}

// Retrieve returns POST /{kind}/{id}/retrieve for the given owner kind.
func (h *ChunkHandler) Retrieve(kind domain.OwnerKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actorOrUnauthorized(w, r)
		if !ok {
			return
		}

		var req RetrieveRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		hits, err := h.retriever.Retrieve(r.Context(), service.RetrieveInput{
			Owner:         ownerFromPath(kind, r),
			ActorID:       actorID,
			Query:         req.Query,
			K:             req.K,
			MinSimilarity: req.MinSimilarity,
		})
		if err != nil {
			api.HandleError(w, err)
			return
		}

		results := make([]*RetrievedChunkResponse, len(hits))
		for i, hit := range hits {
			results[i] = &RetrievedChunkResponse{
				ChunkID:    hit.ChunkID,
				Index:      hit.Index,
				Text:       hit.Text,
				Metadata:   hit.Metadata,
				Similarity: hit.Similarity,
			}
		}

		api.Success(w, http.StatusOK, RetrieveResponse{Results: results})
	}
}

// Update handles PUT /chunks/{id}.
func (h *ChunkHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorOrUnauthorized(w, r); !ok {
		return
	}

	var req UpdateChunkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chunk, err := h.svc.UpdateChunkContent(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, chunkToResponse(chunk))
}

// UpdateEmbeddings handles POST /chunks/embeddings.
func (h *ChunkHandler) UpdateEmbeddings(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorOrUnauthorized(w, r); !ok {
		return
	}

	var req UpdateEmbeddingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ChunkIDs) == 0 {
		api.Error(w, http.StatusBadRequest, "chunkIds is required")
		return
	}

	n, err := h.svc.UpdateEmbeddings(r.Context(), req.ChunkIDs)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, UpdateEmbeddingsResponse{Updated: n})
}
