package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/metrics"
)

// Batcher defaults.
const (
	DefaultEmbeddingBatchSize = 10
	defaultRetryInterval      = 500 * time.Millisecond
)

// EmbeddingClient is the narrow capability the pipeline needs from an
// embedding provider: one call per batch, one vector per input.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, texts []string) (*domain.Embeddings, error)
	Model() string
	Dimensions() int
}

// BatcherConfig tunes provider pacing and retries.
type BatcherConfig struct {
	BatchSize         int
	RequestsPerSecond float64
	MaxRetries        int
	RetryInterval     time.Duration
}

// BatchUsage is the provider cost of a batching run.
type BatchUsage struct {
	Requests int
	Tokens   int
}

// BatchOutcome reports a partial-failure tolerant batching run. Vectors has
// one slot per input; nil slots were not embedded.
type BatchOutcome struct {
	BatchUsage
	Vectors     [][]float32
	FailedBatch int
	Err         error
}

// Complete reports whether every input received a vector.
func (o *BatchOutcome) Complete() bool {
	return o.Err == nil
}

// EmbeddedCount returns the number of inputs that received a vector.
func (o *BatchOutcome) EmbeddedCount() int {
	return lo.CountBy(o.Vectors, func(v []float32) bool { return v != nil })
}

// EmbeddingBatcher groups texts into bounded batches and submits them to the
// provider one at a time.
type EmbeddingBatcher struct {
	client        EmbeddingClient
	limiter       *rate.Limiter
	batchSize     int
	maxRetries    int
	retryInterval time.Duration
	metrics       *metrics.Metrics
}

// NewEmbeddingBatcher creates a batcher. m may be nil.
func NewEmbeddingBatcher(client EmbeddingClient, cfg BatcherConfig, m *metrics.Metrics) *EmbeddingBatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbeddingBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &EmbeddingBatcher{
		client:        client,
		limiter:       rate.NewLimiter(limit, 1),
		batchSize:     cfg.BatchSize,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		metrics:       m,
	}
}

// Model returns the model every vector from this batcher is produced by.
func (b *EmbeddingBatcher) Model() string {
	return b.client.Model()
}

// Dimensions returns the vector length produced by the provider.
func (b *EmbeddingBatcher) Dimensions() int {
	return b.client.Dimensions()
}

// EmbedBatch is all-or-nothing: it returns exactly len(texts) vectors or an
// error. An empty input returns an empty slice without calling the provider.
func (b *EmbeddingBatcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, BatchUsage, error) {
	outcome := b.EmbedBatches(ctx, texts)
	if outcome.Err != nil {
		return nil, outcome.BatchUsage, outcome.Err
	}
	return outcome.Vectors, outcome.BatchUsage, nil
}

// EmbedBatches embeds texts batch by batch. After the first batch that fails
// beyond its retries, no further batches are submitted and Err carries a
// *domain.BatchError naming the failed batch and its input positions.
func (b *EmbeddingBatcher) EmbedBatches(ctx context.Context, texts []string) *BatchOutcome {
	outcome := &BatchOutcome{
		Vectors:     make([][]float32, len(texts)),
		FailedBatch: -1,
	}
	if len(texts) == 0 {
		return outcome
	}

	positions := lo.Range(len(texts))
	for batchIndex, idxs := range lo.Chunk(positions, b.batchSize) {
		batch := lo.Map(idxs, func(i int, _ int) string { return texts[i] })

		result, err := b.embedWithRetry(ctx, batch)
		if err != nil {
			b.metrics.EmbeddingBatch(metrics.BatchFailed)
			outcome.FailedBatch = batchIndex
			outcome.Err = &domain.BatchError{BatchIndex: batchIndex, Indexes: idxs, Err: err}
			return outcome
		}

		b.metrics.EmbeddingBatch(metrics.BatchSucceeded)
		b.metrics.EmbeddingTokens(result.Tokens)
		outcome.Requests++
		outcome.Tokens += result.Tokens
		for j, i := range idxs {
			outcome.Vectors[i] = result.Vectors[j]
		}
	}

	return outcome
}

func (b *EmbeddingBatcher) embedWithRetry(ctx context.Context, batch []string) (*domain.Embeddings, error) {
	attempt := 0
	op := func() (*domain.Embeddings, error) {
		if attempt > 0 {
			b.metrics.EmbeddingBatch(metrics.BatchRetried)
		}
		attempt++

		if err := b.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		result, err := b.client.CreateEmbeddings(ctx, batch)
		if err != nil {
			// only provider failures are transient
			if domain.ErrorCode(err) != domain.ErrCodeProvider || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if len(result.Vectors) != len(batch) {
			return nil, domain.ErrEmbeddingCount
		}
		return result, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.retryInterval
	policy.MaxElapsedTime = 0

	return backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(b.maxRetries)), ctx))
}
