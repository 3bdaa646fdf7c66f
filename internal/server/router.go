package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/docrag/internal/api"
	"github.com/cloo-solutions/docrag/internal/api/handlers"
	"github.com/cloo-solutions/docrag/internal/api/middleware"
	"github.com/cloo-solutions/docrag/internal/domain"
)

type RouterConfig struct {
	TokenValidator   middleware.TokenValidator
	IngestionHandler *handlers.IngestionHandler
	ChunkHandler     *handlers.ChunkHandler
	UsageHandler     *handlers.UsageHandler
	MetricsHandler   http.Handler
	Logger           *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.MaxBodyBytes(middleware.DefaultMaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.TokenValidator))

		r.Route("/documents/{id}", func(r chi.Router) {
			r.Post("/chunks", cfg.IngestionHandler.IngestDocument)
			r.Get("/chunks", cfg.ChunkHandler.List(domain.OwnerKindDocument))
			r.Delete("/chunks", cfg.ChunkHandler.Delete(domain.OwnerKindDocument))
			r.Post("/reingest", cfg.IngestionHandler.ReingestDocument)
			r.Post("/retrieve", cfg.ChunkHandler.Retrieve(domain.OwnerKindDocument))
		})

		r.Route("/bots/{id}", func(r chi.Router) {
			r.Post("/knowledge", cfg.IngestionHandler.AddKnowledge)
			r.Get("/chunks", cfg.ChunkHandler.List(domain.OwnerKindBot))
			r.Delete("/chunks", cfg.ChunkHandler.Delete(domain.OwnerKindBot))
			r.Post("/retrieve", cfg.ChunkHandler.Retrieve(domain.OwnerKindBot))
		})

		r.Route("/chunks", func(r chi.Router) {
			r.Post("/embeddings", cfg.ChunkHandler.UpdateEmbeddings)
			r.Put("/{id}", cfg.ChunkHandler.Update)
		})

		if cfg.UsageHandler != nil {
			r.Get("/usage", cfg.UsageHandler.Get)
		}
	})

	return r
}
