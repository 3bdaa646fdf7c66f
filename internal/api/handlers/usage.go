package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/docrag/internal/api"
)

// UsageReader returns persisted token totals per operation for one actor.
type UsageReader interface {
	TotalsByActor(ctx context.Context, actorID string) (map[string]int64, error)
}

type UsageHandler struct {
	usage UsageReader
}

func NewUsageHandler(usage UsageReader) *UsageHandler {
	return &UsageHandler{usage: usage}
}

type UsageResponse struct {
	ActorID string           `json:"actorId"`
	Tokens  map[string]int64 `json:"tokens"`
}

// Get handles GET /usage for the authenticated actor. Totals only include
// flushed usage windows.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	totals, err := h.usage.TotalsByActor(r.Context(), actorID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, UsageResponse{ActorID: actorID, Tokens: totals})
}
