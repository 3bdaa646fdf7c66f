package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/telemetry"
)

const backfillPageSize = 100

// UpdateEmbeddings re-embeds the given chunks from their stored text and
// writes every vector in one transaction. Either all chunks are updated or
// none are.
func (s *IngestionService) UpdateEmbeddings(ctx context.Context, chunkIDs []string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.UpdateEmbeddings", telemetry.SpanAttributes{
		Operation: "update_embeddings",
	})
	defer span.End()

	ids := lo.Uniq(chunkIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	chunks, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(chunks) != len(ids) {
		found := lo.Map(chunks, func(c *domain.Chunk, _ int) string { return c.ID })
		missing, _ := lo.Difference(ids, found)
		return 0, fmt.Errorf("%w: %v", domain.ErrChunkNotFound, missing)
	}

	texts := lo.Map(chunks, func(c *domain.Chunk, _ int) string { return c.Text })
	vectors, usage, err := s.embedder.EmbedBatch(ctx, texts)
	s.recordUsage(chunks[0].ActorID, domain.UsageOperationBackfill, usage)
	if err != nil {
		span.SetError(err)
		return 0, err
	}

	model := s.embedder.Model()
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		for i, c := range chunks {
			if err := repos.Chunks().UpdateEmbedding(ctx, c.ID, vectors[i], model); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return 0, &domain.StoreError{Op: "update embeddings", Affected: len(chunks), Err: err}
	}

	return len(chunks), nil
}

// BackfillOwner embeds every pending chunk of owner, a page at a time.
// It returns how many chunks were embedded before any failure.
func (s *IngestionService) BackfillOwner(ctx context.Context, owner domain.Owner) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.BackfillOwner", telemetry.SpanAttributes{
		OwnerKind: string(owner.Kind),
		OwnerID:   owner.ID,
		Operation: "backfill",
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

	total := 0
	for {
		ids, err := s.chunks.ListPendingIDs(ctx, owner, backfillPageSize)
		if err != nil {
			span.SetError(err)
			return total, err
		}
		if len(ids) == 0 {
			break
		}

		n, err := s.UpdateEmbeddings(ctx, ids)
		total += n
		if err != nil {
			span.SetError(err)
			return total, err
		}
		s.metrics.ChunksStored(string(owner.Kind), n, 0)
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "backfill completed",
			slog.String("owner", owner.String()), slog.Int("embedded", total))
	}
	return total, nil
}

// UpdateChunkContent replaces one chunk's text, recomputes its metadata and
// re-embeds it. Position and source information are kept.
func (s *IngestionService) UpdateChunkContent(ctx context.Context, chunkID, text string) (*domain.Chunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.UpdateChunkContent", telemetry.SpanAttributes{
		Operation: "update_content",
	})
	defer span.End()

	normalized := NormalizeText(text)
	if normalized == "" {
		return nil, domain.ErrEmptyDocument
	}

	existing, err := s.chunks.GetByID(ctx, chunkID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, existing.Owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	src := SourceInfo{
		Name:  existing.Metadata.SourceName,
		Type:  existing.Metadata.SourceType,
		Title: existing.Metadata.Title,
	}
	md := BuildChunkMetadata(ExtractMetadata(normalized), src, normalized, existing.Index, existing.Metadata.TotalChunks)
	md.Extra = existing.Metadata.Extra

	vectors, usage, err := s.embedder.EmbedBatch(ctx, []string{normalized})
	s.recordUsage(existing.ActorID, domain.UsageOperationIngest, usage)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	model := s.embedder.Model()
	if err := s.chunks.UpdateContent(ctx, chunkID, normalized, md, vectors[0], model); err != nil {
		span.SetError(err)
		return nil, &domain.StoreError{Op: "update chunk content", Affected: 1, Err: err}
	}

	existing.Text = normalized
	existing.Metadata = md
	existing.Embedding = vectors[0]
	existing.EmbeddingModel = model
	existing.EmbeddingPending = false
	existing.UpdatedAt = time.Now().UTC()
	return existing, nil
}
