package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/samber/lo"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/pagination"
)

const (
	chunksTable = "chunks"

	// chunkIndexConstraint is the unique (owner_kind, owner_id, chunk_index) index.
	chunkIndexConstraint = "chunks_owner_index_key"
	uniqueViolation      = "23505"

	// insertBatchRows keeps a multi-row INSERT well under the 65535
	// bind parameter limit.
	insertBatchRows = 500

	// advisory lock namespaces; see AdvisoryOwnerLocker.
	lockClassIngestion = 1
	lockClassPersist   = 2
)

var chunkColumns = []string{
	"id", "owner_kind", "owner_id", "actor_id", "chunk_index", "content", "metadata",
	"embedding", "embedding_model", "embedding_pending", "created_at", "updated_at",
}

// ChunkRepository persists chunks and answers similarity queries with pgvector.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// Insert stores chunks. An (owner, index) pair that already exists fails the
// call with domain.ErrDuplicateChunkIndex.
func (r *ChunkRepository) Insert(ctx context.Context, chunks []*domain.Chunk) error {
	for _, batch := range lo.Chunk(chunks, insertBatchRows) {
		query := psql.Insert(chunksTable).Columns(chunkColumns...)
		for _, c := range batch {
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			updatedAt := c.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = createdAt
			}
			query = query.Values(
				c.ID,
				c.Owner.Kind,
				c.Owner.ID,
				c.ActorID,
				c.Index,
				c.Text,
				c.Metadata,
				vectorParam(c.Embedding),
				nullableString(c.EmbeddingModel),
				c.EmbeddingPending,
				createdAt,
				updatedAt,
			)
		}

		sql, args, err := query.ToSql()
		if err != nil {
			return fmt.Errorf("build chunk insert: %w", err)
		}
		if _, err := r.db.Exec(ctx, sql, args...); err != nil {
			return mapChunkError(err)
		}
	}
	return nil
}

// DeleteByOwner removes every chunk of owner and reports how many were removed.
func (r *ChunkRepository) DeleteByOwner(ctx context.Context, owner domain.Owner) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM chunks WHERE owner_kind = $1 AND owner_id = $2`,
		owner.Kind, owner.ID,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrChunkNotFound
	}

	sql, args, err := psql.Select(chunkColumns...).From(chunksTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	c, err := scanChunk(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return c, nil
}

// GetByIDs returns the chunks that exist among ids, ordered by owner and
// index. Unknown ids are skipped.
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Chunk, error) {
	valid := lo.Filter(ids, func(id string, _ int) bool {
		_, err := uuid.Parse(id)
		return err == nil
	})
	if len(valid) == 0 {
		return []*domain.Chunk{}, nil
	}

	sql, args, err := psql.Select(chunkColumns...).
		From(chunksTable).
		Where(sq.Eq{"id": valid}).
		OrderBy("owner_kind", "owner_id", "chunk_index").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryChunks(ctx, sql, args...)
}

// ListByOwner returns up to limit chunks of owner after the cursor, in index order.
func (r *ChunkRepository) ListByOwner(ctx context.Context, owner domain.Owner, cursor *pagination.Cursor, limit int) ([]*domain.Chunk, error) {
	query := psql.Select(chunkColumns...).
		From(chunksTable).
		Where(ownerFilter(owner)).
		OrderBy("chunk_index ASC").
		Limit(uint64(limit))
	if cursor != nil {
		query = query.Where(sq.Gt{"chunk_index": cursor.AfterIndex})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryChunks(ctx, sql, args...)
}

// ListPendingIDs returns ids of owner's chunks still waiting for a vector.
func (r *ChunkRepository) ListPendingIDs(ctx context.Context, owner domain.Owner, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM chunks
		 WHERE owner_kind = $1 AND owner_id = $2 AND embedding_pending
		 ORDER BY chunk_index ASC
		 LIMIT $3`,
		owner.Kind, owner.ID, limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListOwnersWithPending returns owners that have at least one pending chunk.
func (r *ChunkRepository) ListOwnersWithPending(ctx context.Context, limit int) ([]domain.Owner, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT owner_kind, owner_id FROM chunks
		 WHERE embedding_pending
		 ORDER BY owner_kind, owner_id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []domain.Owner
	for rows.Next() {
		var o domain.Owner
		if err := rows.Scan(&o.Kind, &o.ID); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// CountEmbedded counts owner's chunks that carry a vector from model.
func (r *ChunkRepository) CountEmbedded(ctx context.Context, owner domain.Owner, model string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks
		 WHERE owner_kind = $1 AND owner_id = $2
		   AND embedding IS NOT NULL AND embedding_model = $3`,
		owner.Kind, owner.ID, model,
	).Scan(&n)
	return n, err
}

// NextIndex returns the index an appended chunk of owner takes: one past the
// highest stored index, or 0 for an owner with no chunks. Callers appending
// concurrently must hold LockOwner.
func (r *ChunkRepository) NextIndex(ctx context.Context, owner domain.Owner) (int, error) {
	query, args, err := psql.Select("COALESCE(MAX(chunk_index) + 1, 0)").
		From(chunksTable).
		Where(ownerFilter(owner)).
		ToSql()
	if err != nil {
		return 0, err
	}

	var next int
	err = r.db.QueryRow(ctx, query, args...).Scan(&next)
	return next, err
}

// UpdateEmbedding sets a chunk's vector and clears its pending flag.
func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32, model string) error {
	sql, args, err := psql.Update(chunksTable).
		Set("embedding", pgvector.NewVector(embedding)).
		Set("embedding_model", model).
		Set("embedding_pending", false).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

// UpdateContent replaces a chunk's text, metadata and vector together.
func (r *ChunkRepository) UpdateContent(ctx context.Context, id, text string, md domain.ChunkMetadata, embedding []float32, model string) error {
	sql, args, err := psql.Update(chunksTable).
		Set("content", text).
		Set("metadata", md).
		Set("embedding", vectorParam(embedding)).
		Set("embedding_model", nullableString(model)).
		Set("embedding_pending", embedding == nil).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

// SimilarityQuery returns the K chunks of the owner most similar to the
// query vector by cosine similarity, ties broken by chunk index. Only
// chunks embedded with the query's model are considered.
func (r *ChunkRepository) SimilarityQuery(ctx context.Context, q domain.SimilarityQuery) ([]*domain.RetrievedChunk, error) {
	vec := pgvector.NewVector(q.Embedding)

	sql, args, err := psql.Select("id", "chunk_index", "content", "metadata").
		Column(sq.Expr("1 - (embedding <=> ?) AS similarity", vec)).
		From(chunksTable).
		Where(ownerFilter(q.Owner)).
		Where(sq.NotEq{"embedding": nil}).
		Where(sq.Eq{"embedding_model": q.Model}).
		Where(sq.Expr("1 - (embedding <=> ?) >= ?", vec, q.MinSimilarity)).
		OrderBy("similarity DESC", "chunk_index ASC").
		Limit(uint64(q.K)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []*domain.RetrievedChunk{}
	for rows.Next() {
		var rc domain.RetrievedChunk
		if err := rows.Scan(&rc.ChunkID, &rc.Index, &rc.Text, &rc.Metadata, &rc.Similarity); err != nil {
			return nil, err
		}
		results = append(results, &rc)
	}
	return results, rows.Err()
}

// LockOwner takes a transaction-scoped advisory lock on owner. It must run
// inside a transaction; the lock is released on commit or rollback.
func (r *ChunkRepository) LockOwner(ctx context.Context, owner domain.Owner) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, lockClassPersist, owner.String())
	return err
}

func (r *ChunkRepository) queryChunks(ctx context.Context, sql string, args ...any) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []*domain.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func scanChunk(row pgx.Row) (*domain.Chunk, error) {
	var c domain.Chunk
	var embedding *pgvector.Vector
	var model pgtype.Text
	err := row.Scan(
		&c.ID,
		&c.Owner.Kind,
		&c.Owner.ID,
		&c.ActorID,
		&c.Index,
		&c.Text,
		&c.Metadata,
		&embedding,
		&model,
		&c.EmbeddingPending,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		c.Embedding = embedding.Slice()
	}
	if model.Valid {
		c.EmbeddingModel = model.String
	}
	return &c, nil
}

func ownerFilter(o domain.Owner) sq.Eq {
	return sq.Eq{"owner_kind": o.Kind, "owner_id": o.ID}
}

// vectorParam maps a missing embedding to SQL NULL.
func vectorParam(v []float32) any {
	if v == nil {
		return nil
	}
	return pgvector.NewVector(v)
}

func mapChunkError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == chunkIndexConstraint {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateChunkIndex, pgErr.Detail)
	}
	return err
}
