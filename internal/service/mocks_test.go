package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/pagination"
)

// MockEmbeddingClient mocks the embedding provider client
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) CreateEmbeddings(ctx context.Context, texts []string) (*domain.Embeddings, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Embeddings), args.Error(1)
}

func (m *MockEmbeddingClient) Model() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockEmbeddingClient) Dimensions() int {
	args := m.Called()
	return args.Int(0)
}

// stubEmbeddingClient returns deterministic vectors and can be told to fail
// on given calls (1-based). Each text costs one token.
type stubEmbeddingClient struct {
	mu       sync.Mutex
	dims     int
	calls    int
	sizes    []int
	failures map[int]error
}

func newStubEmbeddingClient(dims int) *stubEmbeddingClient {
	return &stubEmbeddingClient{dims: dims, failures: map[int]error{}}
}

func (s *stubEmbeddingClient) CreateEmbeddings(_ context.Context, texts []string) (*domain.Embeddings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if err, ok := s.failures[s.calls]; ok {
		return nil, err
	}
	s.sizes = append(s.sizes, len(texts))

	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = s.vectorFor(t)
	}
	return &domain.Embeddings{Vectors: vectors, Tokens: len(texts), Model: "stub-model"}, nil
}

func (s *stubEmbeddingClient) Model() string   { return "stub-model" }
func (s *stubEmbeddingClient) Dimensions() int { return s.dims }

func (s *stubEmbeddingClient) vectorFor(text string) []float32 {
	var sum int
	for _, r := range text {
		sum += int(r)
	}
	v := make([]float32, s.dims)
	for j := range v {
		v[j] = float32(sum + j)
	}
	return v
}

func (s *stubEmbeddingClient) failOnCall(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[n] = err
}

func (s *stubEmbeddingClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubEmbeddingClient) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.sizes...)
}

// MockChunkRepository mocks the chunk repository
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) Insert(ctx context.Context, chunks []*domain.Chunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) DeleteByOwner(ctx context.Context, owner domain.Owner) (int64, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChunkRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Chunk), args.Error(1)
}

func (m *MockChunkRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Chunk, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

func (m *MockChunkRepository) ListByOwner(ctx context.Context, owner domain.Owner, cursor *pagination.Cursor, limit int) ([]*domain.Chunk, error) {
	args := m.Called(ctx, owner, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

func (m *MockChunkRepository) ListPendingIDs(ctx context.Context, owner domain.Owner, limit int) ([]string, error) {
	args := m.Called(ctx, owner, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockChunkRepository) ListOwnersWithPending(ctx context.Context, limit int) ([]domain.Owner, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Owner), args.Error(1)
}

func (m *MockChunkRepository) CountEmbedded(ctx context.Context, owner domain.Owner, model string) (int, error) {
	args := m.Called(ctx, owner, model)
	return args.Int(0), args.Error(1)
}

func (m *MockChunkRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32, model string) error {
	args := m.Called(ctx, id, embedding, model)
	return args.Error(0)
}

func (m *MockChunkRepository) UpdateContent(ctx context.Context, id, text string, md domain.ChunkMetadata, embedding []float32, model string) error {
	args := m.Called(ctx, id, text, md, embedding, model)
	return args.Error(0)
}

func (m *MockChunkRepository) SimilarityQuery(ctx context.Context, q domain.SimilarityQuery) ([]*domain.RetrievedChunk, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RetrievedChunk), args.Error(1)
}

func (m *MockChunkRepository) NextIndex(ctx context.Context, owner domain.Owner) (int, error) {
	args := m.Called(ctx, owner)
	return args.Int(0), args.Error(1)
}

func (m *MockChunkRepository) LockOwner(ctx context.Context, owner domain.Owner) error {
	args := m.Called(ctx, owner)
	return args.Error(0)
}

// MockEmbeddingJobRepository mocks the embedding job repository
type MockEmbeddingJobRepository struct {
	mock.Mock
}

func (m *MockEmbeddingJobRepository) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// MockSourceArchive mocks the document source archive
type MockSourceArchive struct {
	mock.Mock
}

func (m *MockSourceArchive) PutSource(ctx context.Context, documentID string, src domain.DocumentSource) error {
	args := m.Called(ctx, documentID, src)
	return args.Error(0)
}

func (m *MockSourceArchive) GetSource(ctx context.Context, documentID string) (*domain.DocumentSource, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentSource), args.Error(1)
}

func (m *MockSourceArchive) DeleteSource(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

// MockUsageRecorder mocks the usage accumulator
type MockUsageRecorder struct {
	mock.Mock
}

func (m *MockUsageRecorder) Record(actorID, operation, model string, requests, tokens int) {
	m.Called(actorID, operation, model, requests, tokens)
}

// MockUUIDGenerator hands out the given ids in order, then "default-uuid".
type MockUUIDGenerator struct {
	mu    sync.Mutex
	uuids []string
	index int
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index >= len(m.uuids) {
		return "default-uuid"
	}
	uuid := m.uuids[m.index]
	m.index++
	return uuid
}
