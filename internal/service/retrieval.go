package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/metrics"
	"github.com/cloo-solutions/docrag/internal/telemetry"
)

// Retrieval defaults.
const (
	DefaultTopK          = 5
	MaxTopK              = 100
	DefaultMinSimilarity = 0.7
)

// RetrieveInput is the input for Retrieve. A nil MinSimilarity uses the
// service default; zero is a valid threshold.
type RetrieveInput struct {
	Owner         domain.Owner
	ActorID       string
	Query         string
	K             int
	MinSimilarity *float64
}

// RetrievalConfig holds the defaults applied to RetrieveInput.
type RetrievalConfig struct {
	TopK          int
	MinSimilarity float64
}

// RetrievalService answers similarity queries over one owner's chunks.
type RetrievalService struct {
	chunks   ChunkRepositoryInterface
	embedder Embedder
	usage    UsageRecorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      RetrievalConfig
}

// NewRetrievalService creates a new RetrievalService instance
func NewRetrievalService(
	chunks ChunkRepositoryInterface,
	embedder Embedder,
	usage UsageRecorder,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg RetrievalConfig,
) *RetrievalService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{
		chunks:   chunks,
		embedder: embedder,
		usage:    usage,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// Retrieve embeds the query with the same model used at ingestion and
// returns the owner's closest chunks, most similar first.
//
// It fails with domain.ErrNoEmbeddedChunks when the owner has nothing
// embedded with the current model, so callers can tell "nothing indexed"
// apart from "nothing relevant" (an empty slice).
func (s *RetrievalService) Retrieve(ctx context.Context, in RetrieveInput) ([]*domain.RetrievedChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		OwnerKind: string(in.Owner.Kind),
		OwnerID:   in.Owner.ID,
		ActorID:   in.ActorID,
		Operation: "retrieve",
	})
	defer span.End()

	kind := string(in.Owner.Kind)
	timer := s.metrics.RetrievalTimer(kind)
	defer timer.ObserveDuration()

	query, k, minSim, err := s.validate(in)
	if err != nil {
		s.metrics.Retrieval(kind, "invalid")
		return nil, err
	}

	model := s.embedder.Model()
	count, err := s.chunks.CountEmbedded(ctx, in.Owner, model)
	if err != nil {
		s.metrics.Retrieval(kind, "error")
		span.SetError(err)
		return nil, err
	}
	if count == 0 {
		s.metrics.Retrieval(kind, "no_chunks")
		return nil, domain.ErrNoEmbeddedChunks
	}

	vectors, usage, err := s.embedder.EmbedBatch(ctx, []string{query})
	if s.usage != nil && usage.Requests > 0 {
		s.usage.Record(in.ActorID, domain.UsageOperationRetrieve, model, usage.Requests, usage.Tokens)
	}
	if err != nil {
		s.metrics.Retrieval(kind, "error")
		span.SetError(err)
		return nil, err
	}

	results, err := s.chunks.SimilarityQuery(ctx, domain.SimilarityQuery{
		Owner:         in.Owner,
		Embedding:     vectors[0],
		Model:         model,
		K:             k,
		MinSimilarity: minSim,
	})
	if err != nil {
		s.metrics.Retrieval(kind, "error")
		span.SetError(err)
		return nil, err
	}

	if results == nil {
		results = []*domain.RetrievedChunk{}
	}
	s.metrics.Retrieval(kind, "success")
	s.logger.DebugContext(ctx, "retrieval completed",
		slog.String("owner", in.Owner.String()),
		slog.Int("k", k),
		slog.Int("hits", len(results)))
	return results, nil
}

func (s *RetrievalService) validate(in RetrieveInput) (string, int, float64, error) {
	if err := domain.ValidateOwner(in.Owner); err != nil {
		return "", 0, 0, err
	}

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return "", 0, 0, domain.ErrEmptyQuery
	}

	k := in.K
	switch {
	case k < 0:
		return "", 0, 0, domain.NewDomainError(domain.ErrCodeValidation, "k cannot be negative")
	case k == 0:
		k = s.cfg.TopK
	case k > MaxTopK:
		k = MaxTopK
	}

	minSim := s.cfg.MinSimilarity
	if in.MinSimilarity != nil {
		minSim = *in.MinSimilarity
	}
	if minSim < -1 || minSim > 1 {
		return "", 0, 0, domain.NewDomainError(domain.ErrCodeValidation,
			fmt.Sprintf("min similarity %.3f outside [-1, 1]", minSim))
	}

	return query, k, minSim, nil
}
