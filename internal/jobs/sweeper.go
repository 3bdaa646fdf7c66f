package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/cloo-solutions/docrag/internal/domain"
)

const (
	sweepOwnerLimit = 500

	// DefaultJobRetention is how long finished jobs are kept.
	DefaultJobRetention = 7 * 24 * time.Hour
)

// PendingOwnerLister finds owners whose chunks still lack vectors.
type PendingOwnerLister interface {
	ListOwnersWithPending(ctx context.Context, limit int) ([]domain.Owner, error)
}

// JobQueue enqueues and prunes backfill jobs.
type JobQueue interface {
	Create(ctx context.Context, job *domain.EmbeddingJob) error
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically re-enqueues backfill jobs for owners left with
// pending chunks (for example after a job exhausted its retries) and prunes
// old finished jobs.
type Sweeper struct {
	cron      *cron.Cron
	chunks    PendingOwnerLister
	jobs      JobQueue
	retention time.Duration
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewSweeper(chunks PendingOwnerLister, jobs JobQueue, retention time.Duration, logger *slog.Logger) *Sweeper {
	if retention <= 0 {
		retention = DefaultJobRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		cron:      cron.New(),
		chunks:    chunks,
		jobs:      jobs,
		retention: retention,
		logger:    logger.With(slog.String("component", "sweeper")),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Sweep enqueues one backfill job per owner with pending chunks. Owners
// that already have a pending job are skipped by the queue.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	owners, err := s.chunks.ListOwnersWithPending(ctx, sweepOwnerLimit)
	if err != nil {
		return 0, fmt.Errorf("list owners with pending chunks: %w", err)
	}

	queued := 0
	for _, owner := range owners {
		job := domain.NewEmbeddingJob(uuid.NewString(), owner, domain.EmbeddingJobStatusPending, 0, "", time.Now().UTC(), nil)
		if err := s.jobs.Create(ctx, job); err != nil {
			s.logger.Error("failed to enqueue backfill job", slog.String("owner", owner.String()), slog.Any("error", err))
			continue
		}
		queued++
	}
	return queued, nil
}

// Prune deletes finished jobs older than the retention window.
func (s *Sweeper) Prune(ctx context.Context) (int64, error) {
	return s.jobs.DeleteFinishedBefore(ctx, time.Now().UTC().Add(-s.retention))
}

// Start schedules the sweep and prune runs and starts the scheduler.
func (s *Sweeper) Start(sweepSchedule, pruneSchedule string) error {
	if _, err := s.cron.AddFunc(sweepSchedule, func() {
		n, err := s.Sweep(s.ctx)
		if err != nil {
			s.logger.Error("backfill sweep failed", slog.Any("error", err))
			return
		}
		if n > 0 {
			s.logger.Info("backfill sweep queued jobs", slog.Int("count", n))
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", sweepSchedule, err)
	}

	if _, err := s.cron.AddFunc(pruneSchedule, func() {
		n, err := s.Prune(s.ctx)
		if err != nil {
			s.logger.Error("job prune failed", slog.Any("error", err))
			return
		}
		s.logger.Info("pruned finished jobs", slog.Int64("count", n))
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", pruneSchedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for running sweeps to finish.
func (s *Sweeper) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}
