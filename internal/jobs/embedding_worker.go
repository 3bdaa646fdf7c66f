package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/metrics"
	"github.com/cloo-solutions/docrag/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of retries for a failed job
	MaxRetries = 3

	claimBatch = 10
)

// EmbeddingJobRepository defines the interface for embedding job persistence
type EmbeddingJobRepository interface {
	// ClaimPending retrieves and claims up to limit pending jobs
	ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error)

	// UpdateStatus updates the status of an embedding job
	UpdateStatus(ctx context.Context, id string, status domain.EmbeddingJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, id string) error
}

// Backfiller embeds every pending chunk of an owner.
type Backfiller interface {
	BackfillOwner(ctx context.Context, owner domain.Owner) (int, error)
}

// EmbeddingWorker processes backfill jobs
type EmbeddingWorker struct {
	repo       EmbeddingJobRepository
	backfiller Backfiller
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewEmbeddingWorker creates a new EmbeddingWorker instance
func NewEmbeddingWorker(repo EmbeddingJobRepository, backfiller Backfiller, m *metrics.Metrics, logger *slog.Logger) *EmbeddingWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingWorker{
		repo:       repo,
		backfiller: backfiller,
		metrics:    m,
		logger:     logger.With(slog.String("component", "embedding_worker")),
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *EmbeddingWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, claimBatch)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	w.logger.Info("processing backfill jobs", slog.Int("count", len(jobs)))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error("error processing job", slog.String("job_id", job.ID), slog.Any("error", err))
		}
	}

	return nil
}

func (w *EmbeddingWorker) processJob(ctx context.Context, job *domain.EmbeddingJob) error {
	ctx, span := telemetry.StartTransaction(ctx, "EmbeddingWorker.processJob", "backfill.job")
	defer span.End()

	if err := domain.ValidateOwner(job.Owner); err != nil {
		span.SetStatus(sentry.SpanStatusInvalidArgument)
		w.metrics.BackfillJob(string(domain.EmbeddingJobStatusFailed))
		return w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusFailed, err.Error())
	}

	n, err := w.backfiller.BackfillOwner(ctx, job.Owner)
	if err != nil {
		span.SetStatus(sentry.SpanStatusUnavailable)
		return w.handleJobFailure(ctx, job, err)
	}
	span.SetStatus(sentry.SpanStatusOK)

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	w.metrics.BackfillJob(string(domain.EmbeddingJobStatusCompleted))
	w.logger.Info("job completed",
		slog.String("job_id", job.ID),
		slog.String("owner", job.Owner.String()),
		slog.Int("embedded", n),
	)
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *EmbeddingWorker) handleJobFailure(ctx context.Context, job *domain.EmbeddingJob, jobErr error) error {
	w.logger.Warn("job failed", slog.String("job_id", job.ID), slog.Any("error", jobErr))

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	// configuration errors will not heal by retrying
	if job.Retries+1 >= MaxRetries || domain.IsConfigurationError(jobErr) {
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if domain.IsConfigurationError(jobErr) {
			errMsg = jobErr.Error()
		}
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		telemetry.CaptureError(ctx, fmt.Errorf("backfill job %s failed: %w", job.ID, jobErr))
		w.metrics.BackfillJob(string(domain.EmbeddingJobStatusFailed))
		return nil
	}

	telemetry.AddBreadcrumb(ctx, "backfill", fmt.Sprintf("job %s retry %d: %v", job.ID, job.Retries+1, jobErr))
	w.logger.Info("job will be retried", slog.String("job_id", job.ID), slog.Int("attempt", int(job.Retries)+1), slog.Int("max", MaxRetries))
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}
	w.metrics.BackfillJob("retried")

	return nil
}
