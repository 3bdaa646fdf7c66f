//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloo-solutions/docrag/internal/api/handlers"
	"github.com/cloo-solutions/docrag/internal/api/middleware"
	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/jobs"
	"github.com/cloo-solutions/docrag/internal/metrics"
	"github.com/cloo-solutions/docrag/internal/repository"
	"github.com/cloo-solutions/docrag/internal/server"
	"github.com/cloo-solutions/docrag/internal/service"
	"github.com/cloo-solutions/docrag/internal/storage"
	"github.com/cloo-solutions/docrag/internal/testutil"
	"github.com/cloo-solutions/docrag/internal/usage"
)

const (
	testActor  = "e2e-actor"
	testToken  = "e2e-token-0123456789"
	testModel  = "bag-of-words"
	testDims   = 1536
	testBucket = "test-sources"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	Server     *httptest.Server
	Embedder   *wordEmbedder
	Ingestion  *service.IngestionService
	Worker     *jobs.EmbeddingWorker
	Usage      *usage.Accumulator
	HTTPClient *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          testBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())

	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewEmbeddingJobRepository(pool)
	usageRepo := repository.NewUsageRepository(pool)
	acc := usage.NewAccumulator(usageRepo, time.Hour, logger)

	embedder := &wordEmbedder{}
	batcher := service.NewEmbeddingBatcher(embedder, service.BatcherConfig{BatchSize: 4, RequestsPerSecond: 100}, m)

	ingestion := service.NewIngestionService(service.IngestionDeps{
		TxRunner: repository.NewTxRunner(pool),
		Chunks:   chunkRepo,
		Embedder: batcher,
		Locker:   repository.NewAdvisoryOwnerLocker(pool),
		Archive:  storage.NewDocumentArchive(s3Client, ""),
		Usage:    acc,
		Metrics:  m,
		Logger:   logger,
	})
	retrieval := service.NewRetrievalService(chunkRepo, batcher, acc, m, logger, service.RetrievalConfig{
		TopK:          3,
		MinSimilarity: 0.1,
	})

	router := server.NewRouter(server.RouterConfig{
		TokenValidator:   middleware.NewStaticTokens(map[string]string{testActor: testToken}),
		IngestionHandler: handlers.NewIngestionHandler(ingestion),
		ChunkHandler:     handlers.NewChunkHandler(ingestion, retrieval),
		UsageHandler:     handlers.NewUsageHandler(usageRepo),
		MetricsHandler:   m.Handler(),
		Logger:           logger,
	})

	return &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		Server:     httptest.NewServer(router),
		Embedder:   embedder,
		Ingestion:  ingestion,
		Worker:     jobs.NewEmbeddingWorker(jobRepo, ingestion, m, logger),
		Usage:      acc,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status int
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// Decode unmarshals the data envelope into dst.
func (r *APIResponse) Decode(t *testing.T, dst any) {
	t.Helper()
	if err := json.Unmarshal(r.Data, dst); err != nil {
		t.Fatalf("failed to decode response data: %v (%s)", err, r.Data)
	}
}

func (e *E2ETestEnv) Get(path string) *APIResponse {
	return e.do(http.MethodGet, path, nil)
}

func (e *E2ETestEnv) Post(path string, body any) *APIResponse {
	return e.do(http.MethodPost, path, body)
}

func (e *E2ETestEnv) Put(path string, body any) *APIResponse {
	return e.do(http.MethodPut, path, body)
}

func (e *E2ETestEnv) Delete(path string) *APIResponse {
	return e.do(http.MethodDelete, path, nil)
}

func (e *E2ETestEnv) do(method, path string, body any) *APIResponse {
	e.T.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.Server.URL+path, reqBody)
	if err != nil {
		e.T.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read response: %v", err)
	}

	apiResp := &APIResponse{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, apiResp); err != nil {
		e.T.Fatalf("HTTP %d: unparseable body %q", resp.StatusCode, raw)
	}
	return apiResp
}

// wordEmbedder hashes lowercase words into buckets and L2-normalizes the
// counts, so texts sharing words have high cosine similarity. Setting fail
// makes every call return a provider error.
type wordEmbedder struct {
	fail  atomic.Bool
	calls atomic.Int64
}

var errProviderDown = errors.New("provider unavailable")

func (w *wordEmbedder) CreateEmbeddings(_ context.Context, texts []string) (*domain.Embeddings, error) {
	w.calls.Add(1)
	if w.fail.Load() {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeProvider, "embedding request failed", errProviderDown)
	}

	out := &domain.Embeddings{Model: testModel, Vectors: make([][]float32, len(texts))}
	for i, text := range texts {
		words := strings.Fields(strings.ToLower(text))
		out.Tokens += len(words)
		out.Vectors[i] = wordVector(words)
	}
	return out, nil
}

func (w *wordEmbedder) Model() string   { return testModel }
func (w *wordEmbedder) Dimensions() int { return testDims }

func wordVector(words []string) []float32 {
	v := make([]float32, testDims)
	for _, word := range words {
		word = strings.Trim(word, ".,;:!?\"'()")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%testDims]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func mustStatus(t *testing.T, resp *APIResponse, want int) {
	t.Helper()
	if resp.Status != want {
		t.Fatalf("expected HTTP %d, got %d: %s %s", want, resp.Status, resp.Error, resp.Data)
	}
}

func sprintfDoc(sections ...string) string {
	var b strings.Builder
	for i, s := range sections {
		fmt.Fprintf(&b, "Section %d\n\n%s\n\n", i+1, s)
	}
	return b.String()
}
