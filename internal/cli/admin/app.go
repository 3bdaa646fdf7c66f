package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/database"
	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/logging"
	"github.com/cloo-solutions/docrag/internal/metrics"
	"github.com/cloo-solutions/docrag/internal/openai"
	"github.com/cloo-solutions/docrag/internal/repository"
	"github.com/cloo-solutions/docrag/internal/service"
	"github.com/cloo-solutions/docrag/internal/storage"
	"github.com/cloo-solutions/docrag/internal/usage"
)

// app is the wired pipeline shared by serve and the one-shot commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	metrics *metrics.Metrics

	chunks    *repository.ChunkRepository
	jobs      *repository.EmbeddingJobRepository
	usageRepo *repository.UsageRepository
	usage     *usage.Accumulator

	ingestion *service.IngestionService
	retrieval *service.RetrievalService
}

type appOptions struct {
	migrate       bool
	migrationsDir string
}

// newApp loads config, installs the logger and wires every component.
// Callers must call close.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Setup(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})

	// the pool registers pgvector types on connect, so the extension must exist first
	if opts.migrate {
		if err := runMigrations(cfg.DatabaseURL, opts.migrationsDir, logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("connected to database")

	m := metrics.New(prometheus.NewRegistry())

	a := &app{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		metrics:   m,
		chunks:    repository.NewChunkRepository(pool),
		jobs:      repository.NewEmbeddingJobRepository(pool),
		usageRepo: repository.NewUsageRepository(pool),
	}
	a.usage = usage.NewAccumulator(a.usageRepo, cfg.UsageFlushInterval, logger)

	if !cfg.HasOpenAI() {
		logger.Warn("DOCRAG_OPENAI_API_KEY not set: embedding requests will fail with a configuration error")
	}
	embeddingClient := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		Timeout:             cfg.EmbeddingTimeout,
	})
	batcher := service.NewEmbeddingBatcher(embeddingClient, service.BatcherConfig{
		BatchSize:         cfg.EmbeddingBatchSize,
		RequestsPerSecond: cfg.EmbeddingRequestsPerSecond,
		MaxRetries:        cfg.EmbeddingMaxRetries,
	}, m)

	deps := service.IngestionDeps{
		TxRunner: repository.NewTxRunner(pool),
		Chunks:   a.chunks,
		Embedder: batcher,
		Locker:   repository.NewAdvisoryOwnerLocker(pool),
		Usage:    a.usage,
		Metrics:  m,
		Logger:   logger,
		Defaults: domain.IngestOptions{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
		},
	}

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		logger.Info("source archive ready", slog.String("bucket", cfg.S3Bucket))
		deps.Archive = storage.NewDocumentArchive(s3Client, "")
	}

	a.ingestion = service.NewIngestionService(deps)
	a.retrieval = service.NewRetrievalService(a.chunks, batcher, a.usage, m, logger, service.RetrievalConfig{
		TopK:          cfg.RetrievalTopK,
		MinSimilarity: cfg.RetrievalMinSimilarity,
	})

	return a, nil
}

// close flushes buffered usage and releases the pool.
func (a *app) close(ctx context.Context) {
	if err := a.usage.Stop(ctx); err != nil {
		a.logger.Error("final usage flush failed", slog.Any("error", err))
	}
	a.pool.Close()
}
