package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/metrics"
	"github.com/cloo-solutions/docrag/internal/pagination"
	"github.com/cloo-solutions/docrag/internal/telemetry"
)

// ChunkRepositoryInterface defines the repository interface for chunk persistence
type ChunkRepositoryInterface interface {
	Insert(ctx context.Context, chunks []*domain.Chunk) error
	DeleteByOwner(ctx context.Context, owner domain.Owner) (int64, error)
	GetByID(ctx context.Context, id string) (*domain.Chunk, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Chunk, error)
	ListByOwner(ctx context.Context, owner domain.Owner, cursor *pagination.Cursor, limit int) ([]*domain.Chunk, error)
	ListPendingIDs(ctx context.Context, owner domain.Owner, limit int) ([]string, error)
	ListOwnersWithPending(ctx context.Context, limit int) ([]domain.Owner, error)
	CountEmbedded(ctx context.Context, owner domain.Owner, model string) (int, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32, model string) error
	UpdateContent(ctx context.Context, id, text string, md domain.ChunkMetadata, embedding []float32, model string) error
	SimilarityQuery(ctx context.Context, q domain.SimilarityQuery) ([]*domain.RetrievedChunk, error)
	NextIndex(ctx context.Context, owner domain.Owner) (int, error)
	LockOwner(ctx context.Context, owner domain.Owner) error
}

// EmbeddingJobRepositoryInterface defines the repository interface for backfill job persistence
type EmbeddingJobRepositoryInterface interface {
	// Create enqueues a job; it is a no-op when the owner already has a pending job.
	Create(ctx context.Context, job *domain.EmbeddingJob) error
}

// Embedder is the batching path every vector in the system goes through.
type Embedder interface {
	EmbedBatches(ctx context.Context, texts []string) *BatchOutcome
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, BatchUsage, error)
	Model() string
	Dimensions() int
}

// SourceArchive keeps the raw text of documents so they can be re-ingested.
type SourceArchive interface {
	PutSource(ctx context.Context, documentID string, src domain.DocumentSource) error
	GetSource(ctx context.Context, documentID string) (*domain.DocumentSource, error)
	DeleteSource(ctx context.Context, documentID string) error
}

// UsageRecorder accumulates provider usage per actor.
type UsageRecorder interface {
	Record(actorID, operation, model string, requests, tokens int)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// IngestionDeps wires an IngestionService. TxRunner, Chunks and Embedder are
// required; the rest are optional.
type IngestionDeps struct {
	TxRunner TxRunner
	Chunks   ChunkRepositoryInterface
	Embedder Embedder
	Locker   OwnerLocker
	Archive  SourceArchive
	Usage    UsageRecorder
	Metrics  *metrics.Metrics
	UUIDGen  UUIDGenerator
	Logger   *slog.Logger
	Defaults domain.IngestOptions
}

// IngestionService turns raw text into a persisted chunk set and keeps
// that set's embeddings up to date.
type IngestionService struct {
	txRunner TxRunner
	chunks   ChunkRepositoryInterface
	embedder Embedder
	locker   OwnerLocker
	archive  SourceArchive
	usage    UsageRecorder
	metrics  *metrics.Metrics
	uuidGen  UUIDGenerator
	logger   *slog.Logger
	defaults domain.IngestOptions
}

// NewIngestionService creates a new IngestionService instance
func NewIngestionService(deps IngestionDeps) *IngestionService {
	s := &IngestionService{
		txRunner: deps.TxRunner,
		chunks:   deps.Chunks,
		embedder: deps.Embedder,
		locker:   deps.Locker,
		archive:  deps.Archive,
		usage:    deps.Usage,
		metrics:  deps.Metrics,
		uuidGen:  deps.UUIDGen,
		logger:   deps.Logger,
		defaults: deps.Defaults,
	}
	if s.locker == nil {
		s.locker = NewLocalOwnerLocker()
	}
	if s.uuidGen == nil {
		s.uuidGen = &DefaultUUIDGenerator{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	// Unset defaults take the package size and overlap together; a configured
	// size keeps its overlap, including 0.
	if s.defaults.ChunkSize <= 0 {
		s.defaults.ChunkSize = domain.DefaultChunkSize
		if s.defaults.ChunkOverlap == 0 {
			s.defaults.ChunkOverlap = domain.DefaultChunkOverlap
		}
	}
	if s.defaults.ChunkOverlap < 0 {
		s.defaults.ChunkOverlap = domain.DefaultChunkOverlap
	}
	return s
}

// DefaultOptions returns the options used when a caller supplies none.
func (s *IngestionService) DefaultOptions() domain.IngestOptions {
	opts := s.defaults
	opts.GenerateEmbeddings = true
	opts.ExtractMetadata = true
	return opts
}

// DocumentInput is the input for ProcessDocument
type DocumentInput struct {
	DocumentID string
	ActorID    string
	Text       string
	SourceName string
	SourceType string
	Options    domain.IngestOptions
}

// KnowledgeInput is the input for ProcessKnowledgeItem
type KnowledgeInput struct {
	BotID   string
	ActorID string
	Title   string
	Text    string
}

// ProcessDocument replaces a document's chunk set with chunks of text.
//
// A configuration error from the embedding provider aborts before anything
// is written. A provider error does not: every chunk is stored, the ones
// left without a vector are queued for backfill and the result reports
// Success=false with the counts. Only validation and datastore failures are
// returned as errors.
func (s *IngestionService) ProcessDocument(ctx context.Context, in DocumentInput) (*domain.IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.ProcessDocument", telemetry.SpanAttributes{
		OwnerKind: string(domain.OwnerKindDocument),
		OwnerID:   in.DocumentID,
		ActorID:   in.ActorID,
		Operation: "ingest",
	})
	defer span.End()

	if in.DocumentID == "" || in.ActorID == "" {
		return nil, fmt.Errorf("%w: document ID and actor ID", domain.ErrMissingRequiredField)
	}

	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = domain.SourceTypeDocument
	}
	src := SourceInfo{Name: in.SourceName, Type: sourceType}
	owner := domain.DocumentOwner(in.DocumentID)

	result, err := s.ingest(ctx, owner, in.ActorID, in.Text, s.withDefaults(in.Options), src, replaceOwnerSet)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if s.archive != nil {
		archived := domain.DocumentSource{Name: in.SourceName, Type: sourceType, Text: in.Text}
		if err := s.archive.PutSource(ctx, in.DocumentID, archived); err != nil {
			s.logger.WarnContext(ctx, "failed to archive document source",
				slog.String("document_id", in.DocumentID), slog.Any("error", err))
		}
	}

	return result, nil
}

// ProcessKnowledgeItem adds one knowledge entry to a bot. The entry's chunks
// are stitched with preceding context and appended after the bot's existing
// chunks, so earlier entries stay searchable. Chunk metadata indexes are
// relative to the entry.
func (s *IngestionService) ProcessKnowledgeItem(ctx context.Context, in KnowledgeInput) (*domain.IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.ProcessKnowledgeItem", telemetry.SpanAttributes{
		OwnerKind: string(domain.OwnerKindBot),
		OwnerID:   in.BotID,
		ActorID:   in.ActorID,
		Operation: "ingest",
	})
	defer span.End()

	if in.BotID == "" || in.ActorID == "" {
		return nil, fmt.Errorf("%w: bot ID and actor ID", domain.ErrMissingRequiredField)
	}

	text := in.Text
	if title := strings.TrimSpace(in.Title); title != "" {
		text = title + "\n\n" + in.Text
	}
	src := SourceInfo{Name: in.Title, Type: domain.SourceTypeKnowledge, Title: in.Title}

	result, err := s.ingest(ctx, domain.BotOwner(in.BotID), in.ActorID, text, s.DefaultOptions(), src, appendToOwnerSet)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return result, nil
}

// ReingestDocument re-runs ingestion from the archived source text.
func (s *IngestionService) ReingestDocument(ctx context.Context, documentID, actorID string, opts domain.IngestOptions) (*domain.IngestResult, error) {
	if s.archive == nil {
		return nil, domain.ErrSourceArchiveDisabled
	}

	src, err := s.archive.GetSource(ctx, documentID)
	if err != nil {
		return nil, err
	}

	return s.ProcessDocument(ctx, DocumentInput{
		DocumentID: documentID,
		ActorID:    actorID,
		Text:       src.Text,
		SourceName: src.Name,
		SourceType: src.Type,
		Options:    opts,
	})
}

// DeleteOwner removes every chunk of owner, and the archived source for
// documents. It is idempotent.
func (s *IngestionService) DeleteOwner(ctx context.Context, owner domain.Owner) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.DeleteOwner", telemetry.SpanAttributes{
		OwnerKind: string(owner.Kind),
		OwnerID:   owner.ID,
		Operation: "delete",
	})
	defer span.End()

	if err := domain.ValidateOwner(owner); err != nil {
		return 0, err
	}

	unlock, err := s.locker.Lock(ctx, owner)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var deleted int64
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().LockOwner(ctx, owner); err != nil {
			return err
		}
		n, err := repos.Chunks().DeleteByOwner(ctx, owner)
		deleted = n
		return err
	})
	if err != nil {
		span.SetError(err)
		return 0, &domain.StoreError{Op: "delete chunks", Affected: 0, Err: err}
	}

	if owner.Kind == domain.OwnerKindDocument && s.archive != nil {
		if err := s.archive.DeleteSource(ctx, owner.ID); err != nil && !errors.Is(err, domain.ErrSourceNotFound) {
			s.logger.WarnContext(ctx, "failed to delete archived document source",
				slog.String("document_id", owner.ID), slog.Any("error", err))
		}
	}

	s.logger.InfoContext(ctx, "owner chunks deleted",
		slog.String("owner", owner.String()), slog.Int64("deleted", deleted))
	return deleted, nil
}

// ChunkPage is one page of an owner's chunks, ordered by index.
type ChunkPage = pagination.PageResult[*domain.Chunk]

// ListChunks pages through an owner's chunks in index order.
func (s *IngestionService) ListChunks(ctx context.Context, owner domain.Owner, cursor string, limit int) (*ChunkPage, error) {
	if err := domain.ValidateOwner(owner); err != nil {
		return nil, err
	}

	decoded, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	limit = pagination.ClampLimit(limit)
	items, err := s.chunks.ListByOwner(ctx, owner, decoded, limit+1)
	if err != nil {
		return nil, err
	}

	page, next := pagination.CreateNextCursor(items, limit, func(c *domain.Chunk) int { return c.Index })
	if page == nil {
		page = []*domain.Chunk{}
	}
	return &ChunkPage{Items: page, Cursor: next, HasMore: next != ""}, nil
}

func (s *IngestionService) withDefaults(opts domain.IngestOptions) domain.IngestOptions {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = s.defaults.ChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = s.defaults.ChunkOverlap
	}
	return opts
}

// persistMode says how a fresh chunk set meets the owner's stored one.
type persistMode int

const (
	// replaceOwnerSet drops the stored set first.
	replaceOwnerSet persistMode = iota
	// appendToOwnerSet keeps the stored set and numbers new chunks after it.
	appendToOwnerSet
)

// ingest runs normalize, segment, extract, embed and persist for one owner
// while holding the owner lock, so a slower earlier run can never replace
// the chunk set of a later one.
func (s *IngestionService) ingest(
	ctx context.Context,
	owner domain.Owner,
	actorID, text string,
	opts domain.IngestOptions,
	src SourceInfo,
	mode persistMode,
) (*domain.IngestResult, error) {
	kind := string(owner.Kind)

	normalized := NormalizeText(text)
	texts := Segment(normalized, ChunkConfig{
		MaxChars: opts.ChunkSize,
		Overlap:  opts.ChunkOverlap,
		Mode:     ChunkModeFor(owner.Kind),
	})
	if len(texts) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	unlock, err := s.locker.Lock(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var docMeta domain.DocumentMetadata
	if opts.ExtractMetadata {
		docMeta = ExtractMetadata(normalized)
	}

	now := time.Now().UTC()
	chunks := make([]*domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = &domain.Chunk{
			ID:        s.uuidGen.NewString(),
			Owner:     owner,
			ActorID:   actorID,
			Text:      t,
			Index:     i,
			Metadata:  BuildChunkMetadata(docMeta, src, t, i, len(texts)),
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	var outcome *BatchOutcome
	if opts.GenerateEmbeddings {
		outcome = s.embedder.EmbedBatches(ctx, texts)
		s.recordUsage(actorID, domain.UsageOperationIngest, outcome.BatchUsage)

		if outcome.Err != nil && domain.IsConfigurationError(outcome.Err) {
			s.metrics.Ingestion(kind, "error")
			s.logger.ErrorContext(ctx, "ingestion aborted: embedding provider not configured",
				slog.String("owner", owner.String()), slog.Any("error", outcome.Err))
			return nil, outcome.Err
		}

		model := s.embedder.Model()
		for i, v := range outcome.Vectors {
			if v != nil {
				chunks[i].Embedding = v
				chunks[i].EmbeddingModel = model
			} else {
				chunks[i].EmbeddingPending = true
			}
		}
	}

	if err := domain.ValidateChunkSet(chunks, s.embedder.Dimensions()); err != nil {
		return nil, err
	}

	result := &domain.IngestResult{ChunkCount: len(chunks)}
	for _, c := range chunks {
		switch {
		case c.Embedded():
			result.EmbeddedCount++
		case c.EmbeddingPending:
			result.PendingCount++
		}
	}

	if err := s.persistChunks(ctx, owner, chunks, result.PendingCount > 0, mode); err != nil {
		s.metrics.Ingestion(kind, "error")
		return nil, err
	}

	s.metrics.ChunksStored(kind, result.EmbeddedCount, result.PendingCount)

	result.Success = outcome == nil || outcome.Err == nil
	if !result.Success {
		batch := outcome.FailedBatch
		result.FailedBatch = &batch
		result.Error = outcome.Err.Error()
		s.metrics.Ingestion(kind, "partial")
		s.logger.WarnContext(ctx, "ingestion stored chunks pending backfill",
			slog.String("owner", owner.String()),
			slog.Int("chunks", result.ChunkCount),
			slog.Int("pending", result.PendingCount),
			slog.Int("failed_batch", batch),
			slog.Any("error", outcome.Err))
		return result, nil
	}

	s.metrics.Ingestion(kind, "success")
	s.logger.InfoContext(ctx, "ingestion completed",
		slog.String("owner", owner.String()),
		slog.Int("chunks", result.ChunkCount),
		slog.Int("embedded", result.EmbeddedCount))
	return result, nil
}

// persistChunks writes a chunk set in one transaction, either swapping out
// the owner's stored set or appending after it, and queues a backfill job
// when some chunks still need vectors. Appended chunks take indexes from
// the stored count on, which keeps the owner's indexes contiguous.
func (s *IngestionService) persistChunks(ctx context.Context, owner domain.Owner, chunks []*domain.Chunk, needsBackfill bool, mode persistMode) error {
	op := "replace chunks"
	if mode == appendToOwnerSet {
		op = "append chunks"
	}

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().LockOwner(ctx, owner); err != nil {
			return err
		}
		switch mode {
		case appendToOwnerSet:
			next, err := repos.Chunks().NextIndex(ctx, owner)
			if err != nil {
				return err
			}
			for i, c := range chunks {
				c.Index = next + i
			}
		default:
			if _, err := repos.Chunks().DeleteByOwner(ctx, owner); err != nil {
				return err
			}
		}
		if err := repos.Chunks().Insert(ctx, chunks); err != nil {
			return err
		}
		if !needsBackfill {
			return nil
		}
		job := domain.NewEmbeddingJob(s.uuidGen.NewString(), owner, domain.EmbeddingJobStatusPending, 0, "", time.Now().UTC(), nil)
		return repos.EmbeddingJobs().Create(ctx, job)
	})
	if err != nil {
		return &domain.StoreError{Op: op, Affected: len(chunks), Err: err}
	}
	return nil
}

func (s *IngestionService) recordUsage(actorID, operation string, usage BatchUsage) {
	if s.usage == nil || usage.Requests == 0 {
		return
	}
	s.usage.Record(actorID, operation, s.embedder.Model(), usage.Requests, usage.Tokens)
}
