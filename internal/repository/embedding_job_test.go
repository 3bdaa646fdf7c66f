//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/testutil"
)

func newTestJob(owner domain.Owner, createdAt time.Time) *domain.EmbeddingJob {
	return domain.NewEmbeddingJob(uuid.NewString(), owner, domain.EmbeddingJobStatusPending, 0, "", createdAt, nil)
}

func TestEmbeddingJobRepository_Create(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewEmbeddingJobRepository(pool)
	owner := domain.DocumentOwner("doc-1")
	job := newTestJob(owner, time.Now().UTC().Truncate(time.Microsecond))

	require.NoError(t, jobRepo.Create(ctx, job))

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, retrieved.ID)
	assert.Equal(t, owner, retrieved.Owner)
	assert.Equal(t, domain.EmbeddingJobStatusPending, retrieved.Status)
	assert.Equal(t, int32(0), retrieved.Retries)
	assert.Empty(t, retrieved.Error)
	assert.Nil(t, retrieved.ProcessedAt)
}

func TestEmbeddingJobRepository_CreateSkipsDuplicatePending(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewEmbeddingJobRepository(pool)
	owner := domain.BotOwner("bot-1")
	first := newTestJob(owner, time.Now().UTC())
	second := newTestJob(owner, time.Now().UTC())

	require.NoError(t, jobRepo.Create(ctx, first))
	require.NoError(t, jobRepo.Create(ctx, second))

	_, err := jobRepo.GetByID(ctx, second.ID)
	assert.ErrorIs(t, err, domain.ErrEmbeddingJobNotFound)

	// once the first job is claimed a new one can be queued
	claimed, err := jobRepo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, jobRepo.Create(ctx, second))
	_, err = jobRepo.GetByID(ctx, second.ID)
	assert.NoError(t, err)
}

func TestEmbeddingJobRepository_CreateInvalid(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewEmbeddingJobRepository(pool)
	job := newTestJob(domain.Owner{Kind: "user", ID: "u"}, time.Now().UTC())

	err := jobRepo.Create(ctx, job)
	assert.ErrorIs(t, err, domain.ErrInvalidOwnerKind)
}

func TestEmbeddingJobRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewEmbeddingJobRepository(pool)
	_, err := jobRepo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrEmbeddingJobNotFound)
}

func TestEmbeddingJobRepository_ClaimPending(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewEmbeddingJobRepository(pool)
	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		job := newTestJob(domain.DocumentOwner(uuid.NewString()), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, jobRepo.Create(ctx, job))
		ids = append(ids, job.ID)
	}

	claimed, err := jobRepo.ClaimPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, ids[0], claimed[0].ID)
	assert.Equal(t, ids[1], claimed[1].ID)
	for _, job := range claimed {
		assert.Equal(t, domain.EmbeddingJobStatusProcessing, job.Status)
	}

	claimed, err = jobRepo.ClaimPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, ids[2], claimed[0].ID)

	claimed, err = jobRepo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestEmbeddingJobRepository_ClaimPendingConcurrent(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewEmbeddingJobRepository(pool)
	for i := 0; i < 20; i++ {
		require.NoError(t, jobRepo.Create(ctx, newTestJob(domain.BotOwner(uuid.NewString()), time.Now().UTC())))
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs, err := jobRepo.ClaimPending(ctx, 10)
			if err != nil {
				return
			}
			mu.Lock()
			for _, j := range jobs {
				seen[j.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestEmbeddingJobRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewEmbeddingJobRepository(pool)
	job := newTestJob(domain.DocumentOwner("doc-1"), time.Now().UTC())
	require.NoError(t, jobRepo.Create(ctx, job))

	require.NoError(t, jobRepo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusFailed, "provider down"))

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingJobStatusFailed, retrieved.Status)
	assert.Equal(t, "provider down", retrieved.Error)
	assert.NotNil(t, retrieved.ProcessedAt)

	err = jobRepo.UpdateStatus(ctx, uuid.NewString(), domain.EmbeddingJobStatusCompleted, "")
	assert.ErrorIs(t, err, domain.ErrEmbeddingJobNotFound)
}

func TestEmbeddingJobRepository_IncrementRetries(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewEmbeddingJobRepository(pool)
	job := newTestJob(domain.DocumentOwner("doc-1"), time.Now().UTC())
	require.NoError(t, jobRepo.Create(ctx, job))

	require.NoError(t, jobRepo.IncrementRetries(ctx, job.ID))
	require.NoError(t, jobRepo.IncrementRetries(ctx, job.ID))

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), retrieved.Retries)

	err = jobRepo.IncrementRetries(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrEmbeddingJobNotFound)
}

func TestEmbeddingJobRepository_DeleteFinishedBefore(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewEmbeddingJobRepository(pool)
	done := newTestJob(domain.DocumentOwner("doc-1"), time.Now().UTC())
	pending := newTestJob(domain.DocumentOwner("doc-2"), time.Now().UTC())
	require.NoError(t, jobRepo.Create(ctx, done))
	require.NoError(t, jobRepo.Create(ctx, pending))
	require.NoError(t, jobRepo.UpdateStatus(ctx, done.ID, domain.EmbeddingJobStatusCompleted, ""))

	n, err := jobRepo.DeleteFinishedBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = jobRepo.GetByID(ctx, done.ID)
	assert.ErrorIs(t, err, domain.ErrEmbeddingJobNotFound)
	_, err = jobRepo.GetByID(ctx, pending.ID)
	assert.NoError(t, err)
}
