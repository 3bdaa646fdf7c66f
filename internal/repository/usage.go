package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// UsageRepository stores aggregated embedding usage per actor.
type UsageRepository struct {
	db dbtx
}

func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: pool}
}

// SaveBatch inserts one row per record in a single round trip.
func (r *UsageRepository) SaveBatch(ctx context.Context, records []domain.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(
			`INSERT INTO embedding_usage (actor_id, operation, model, requests, tokens, window_end)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ActorID, rec.Operation, rec.Model, rec.Requests, rec.Tokens, rec.WindowEnd,
		)
	}

	return r.db.SendBatch(ctx, batch).Close()
}

// TotalsByActor sums tokens per operation for one actor.
func (r *UsageRepository) TotalsByActor(ctx context.Context, actorID string) (map[string]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT operation, COALESCE(SUM(tokens), 0)::bigint
		 FROM embedding_usage WHERE actor_id = $1
		 GROUP BY operation`,
		actorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := map[string]int64{}
	for rows.Next() {
		var op string
		var tokens int64
		if err := rows.Scan(&op, &tokens); err != nil {
			return nil, err
		}
		totals[op] = tokens
	}
	return totals, rows.Err()
}
