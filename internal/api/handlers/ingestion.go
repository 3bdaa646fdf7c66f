package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/docrag/internal/api"
	"github.com/cloo-solutions/docrag/internal/service"
)

type IngestionHandler struct {
	svc IngestionService
}

func NewIngestionHandler(svc IngestionService) *IngestionHandler {
	return &IngestionHandler{svc: svc}
}

type IngestDocumentRequest struct {
	Text       string          `json:"text"`
	SourceName string          `json:"sourceName"`
	SourceType string          `json:"sourceType"`
	Options    json.RawMessage `json:"options"`
}

type ReingestDocumentRequest struct {
	Options json.RawMessage `json:"options"`
}

type AddKnowledgeRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// IngestDocument handles POST /documents/{id}/chunks.
func (h *IngestionHandler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req IngestDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		api.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	opts, err := resolveOptions(h.svc.DefaultOptions(), req.Options)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid options")
		return
	}

	res, err := h.svc.ProcessDocument(r.Context(), service.DocumentInput{
		DocumentID: chi.URLParam(r, "id"),
		ActorID:    actorID,
		Text:       req.Text,
		SourceName: req.SourceName,
		SourceType: req.SourceType,
		Options:    opts,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, ingestStatus(res), res)
}

// ReingestDocument handles POST /documents/{id}/reingest. The body is optional.
func (h *IngestionHandler) ReingestDocument(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req ReingestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts, err := resolveOptions(h.svc.DefaultOptions(), req.Options)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid options")
		return
	}

	res, err := h.svc.ReingestDocument(r.Context(), chi.URLParam(r, "id"), actorID, opts)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, ingestStatus(res), res)
}

// AddKnowledge handles POST /bots/{id}/knowledge.
func (h *IngestionHandler) AddKnowledge(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req AddKnowledgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" && req.Text == "" {
		api.Error(w, http.StatusBadRequest, "title or text is required")
		return
	}

	res, err := h.svc.ProcessKnowledgeItem(r.Context(), service.KnowledgeInput{
		BotID:   chi.URLParam(r, "id"),
		ActorID: actorID,
		Title:   req.Title,
		Text:    req.Text,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, ingestStatus(res), res)
}
