package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docrag/internal/api"
	"github.com/cloo-solutions/docrag/internal/api/middleware"
	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/service"
)

type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) DefaultOptions() domain.IngestOptions {
	return domain.DefaultIngestOptions()
}

func (m *MockIngestionService) ProcessDocument(ctx context.Context, in service.DocumentInput) (*domain.IngestResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestResult), args.Error(1)
}

func (m *MockIngestionService) ProcessKnowledgeItem(ctx context.Context, in service.KnowledgeInput) (*domain.IngestResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestResult), args.Error(1)
}

func (m *MockIngestionService) ReingestDocument(ctx context.Context, documentID, actorID string, opts domain.IngestOptions) (*domain.IngestResult, error) {
	args := m.Called(ctx, documentID, actorID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestResult), args.Error(1)
}

func (m *MockIngestionService) DeleteOwner(ctx context.Context, owner domain.Owner) (int64, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockIngestionService) ListChunks(ctx context.Context, owner domain.Owner, cursor string, limit int) (*service.ChunkPage, error) {
	args := m.Called(ctx, owner, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChunkPage), args.Error(1)
}

func (m *MockIngestionService) UpdateChunkContent(ctx context.Context, chunkID, text string) (*domain.Chunk, error) {
	args := m.Called(ctx, chunkID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Chunk), args.Error(1)
}

func (m *MockIngestionService) UpdateEmbeddings(ctx context.Context, chunkIDs []string) (int, error) {
	args := m.Called(ctx, chunkIDs)
	return args.Int(0), args.Error(1)
}

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, in service.RetrieveInput) ([]*domain.RetrievedChunk, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RetrievedChunk), args.Error(1)
}

type MockUsageReader struct {
	mock.Mock
}

func (m *MockUsageReader) TotalsByActor(ctx context.Context, actorID string) (map[string]int64, error) {
	args := m.Called(ctx, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

const testActor = "actor-1"

// testRouter mounts the handlers the way the server does, minus auth.
func testRouter(svc *MockIngestionService, retriever *MockRetriever, usage *MockUsageReader) http.Handler {
	ingest := NewIngestionHandler(svc)
	chunks := NewChunkHandler(svc, retriever)

	r := chi.NewRouter()
	r.Post("/documents/{id}/chunks", ingest.IngestDocument)
	r.Post("/documents/{id}/reingest", ingest.ReingestDocument)
	r.Get("/documents/{id}/chunks", chunks.List(domain.OwnerKindDocument))
	r.Delete("/documents/{id}/chunks", chunks.Delete(domain.OwnerKindDocument))
	r.Post("/documents/{id}/retrieve", chunks.Retrieve(domain.OwnerKindDocument))
	r.Post("/bots/{id}/knowledge", ingest.AddKnowledge)
	r.Get("/bots/{id}/chunks", chunks.List(domain.OwnerKindBot))
	r.Post("/bots/{id}/retrieve", chunks.Retrieve(domain.OwnerKindBot))
	r.Put("/chunks/{id}", chunks.Update)
	r.Post("/chunks/embeddings", chunks.UpdateEmbeddings)
	if usage != nil {
		r.Get("/usage", NewUsageHandler(usage).Get)
	}
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, actor string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req = req.WithContext(context.WithValue(req.Context(), middleware.ActorIDKey, actor))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
