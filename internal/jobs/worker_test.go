package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockEmbeddingJobRepository is a mock implementation of EmbeddingJobRepository
type MockEmbeddingJobRepository struct {
	mock.Mock
}

func (m *MockEmbeddingJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EmbeddingJob), args.Error(1)
}

func (m *MockEmbeddingJobRepository) UpdateStatus(ctx context.Context, id string, status domain.EmbeddingJobStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockEmbeddingJobRepository) IncrementRetries(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockBackfiller is a mock implementation of Backfiller
type MockBackfiller struct {
	mock.Mock
}

func (m *MockBackfiller) BackfillOwner(ctx context.Context, owner domain.Owner) (int, error) {
	args := m.Called(ctx, owner)
	return args.Int(0), args.Error(1)
}

func pendingJob(id string, owner domain.Owner, retries int32) *domain.EmbeddingJob {
	return &domain.EmbeddingJob{
		ID:      id,
		Owner:   owner,
		Status:  domain.EmbeddingJobStatusPending,
		Retries: retries,
	}
}

func nonEmpty(msg string) bool { return msg != "" }

func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("transient"))

	worker := NewWorker(mockProcessor, 100*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestEmbeddingWorker_ProcessJobs_NoPendingJobs(t *testing.T) {
	mockRepo := new(MockEmbeddingJobRepository)
	mockBackfiller := new(MockBackfiller)

	mockRepo.On("ClaimPending", mock.Anything, claimBatch).Return([]*domain.EmbeddingJob{}, nil)

	worker := NewEmbeddingWorker(mockRepo, mockBackfiller, nil, nil)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockBackfiller.AssertNotCalled(t, "BackfillOwner", mock.Anything, mock.Anything)
}

func TestEmbeddingWorker_ProcessJobs_Success(t *testing.T) {
	mockRepo := new(MockEmbeddingJobRepository)
	mockBackfiller := new(MockBackfiller)
	owner := domain.DocumentOwner("doc-1")

	mockRepo.On("ClaimPending", mock.Anything, claimBatch).Return([]*domain.EmbeddingJob{pendingJob("job-1", owner, 0)}, nil)
	mockBackfiller.On("BackfillOwner", mock.Anything, owner).Return(4, nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.EmbeddingJobStatusCompleted, "").Return(nil)

	worker := NewEmbeddingWorker(mockRepo, mockBackfiller, nil, nil)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockBackfiller.AssertExpectations(t)
}

func TestEmbeddingWorker_ProcessJobs_FailureWithRetry(t *testing.T) {
	mockRepo := new(MockEmbeddingJobRepository)
	mockBackfiller := new(MockBackfiller)
	owner := domain.BotOwner("bot-1")

	mockRepo.On("ClaimPending", mock.Anything, claimBatch).Return([]*domain.EmbeddingJob{pendingJob("job-1", owner, 0)}, nil)
	mockBackfiller.On("BackfillOwner", mock.Anything, owner).Return(0, errors.New("provider unavailable"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.EmbeddingJobStatusPending, mock.MatchedBy(nonEmpty)).Return(nil)

	worker := NewEmbeddingWorker(mockRepo, mockBackfiller, nil, nil)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockBackfiller.AssertExpectations(t)
}

func TestEmbeddingWorker_ProcessJobs_MaxRetriesExceeded(t *testing.T) {
	mockRepo := new(MockEmbeddingJobRepository)
	mockBackfiller := new(MockBackfiller)
	owner := domain.DocumentOwner("doc-1")

	mockRepo.On("ClaimPending", mock.Anything, claimBatch).Return([]*domain.EmbeddingJob{pendingJob("job-1", owner, 2)}, nil)
	mockBackfiller.On("BackfillOwner", mock.Anything, owner).Return(0, errors.New("provider unavailable"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.EmbeddingJobStatusFailed, mock.MatchedBy(nonEmpty)).Return(nil)

	worker := NewEmbeddingWorker(mockRepo, mockBackfiller, nil, nil)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestEmbeddingWorker_ProcessJobs_ConfigurationErrorFailsImmediately(t *testing.T) {
	mockRepo := new(MockEmbeddingJobRepository)
	mockBackfiller := new(MockBackfiller)
	owner := domain.DocumentOwner("doc-1")

	mockRepo.On("ClaimPending", mock.Anything, claimBatch).Return([]*domain.EmbeddingJob{pendingJob("job-1", owner, 0)}, nil)
	mockBackfiller.On("BackfillOwner", mock.Anything, owner).Return(0, domain.ErrEmbeddingCredentials)
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.EmbeddingJobStatusFailed, domain.ErrEmbeddingCredentials.Error()).Return(nil)

	worker := NewEmbeddingWorker(mockRepo, mockBackfiller, nil, nil)
	assert.NoError(t, worker.ProcessJobs(context.Background()))
	mockRepo.AssertExpectations(t)
}

func TestEmbeddingWorker_ProcessJobs_InvalidOwner(t *testing.T) {
	mockRepo := new(MockEmbeddingJobRepository)
	mockBackfiller := new(MockBackfiller)

	mockRepo.On("ClaimPending", mock.Anything, claimBatch).Return([]*domain.EmbeddingJob{pendingJob("job-1", domain.Owner{Kind: "user", ID: "u"}, 0)}, nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.EmbeddingJobStatusFailed, mock.MatchedBy(nonEmpty)).Return(nil)

	worker := NewEmbeddingWorker(mockRepo, mockBackfiller, nil, nil)
	assert.NoError(t, worker.ProcessJobs(context.Background()))
	mockRepo.AssertExpectations(t)
	mockBackfiller.AssertNotCalled(t, "BackfillOwner", mock.Anything, mock.Anything)
}

func TestEmbeddingWorker_ProcessJobs_MultipleJobs(t *testing.T) {
	mockRepo := new(MockEmbeddingJobRepository)
	mockBackfiller := new(MockBackfiller)
	first := domain.DocumentOwner("doc-1")
	second := domain.BotOwner("bot-1")

	mockRepo.On("ClaimPending", mock.Anything, claimBatch).Return([]*domain.EmbeddingJob{
		pendingJob("job-1", first, 0),
		pendingJob("job-2", second, 0),
	}, nil)

	// first job failing does not stop the second
	mockBackfiller.On("BackfillOwner", mock.Anything, first).Return(0, errors.New("boom"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.EmbeddingJobStatusPending, mock.MatchedBy(nonEmpty)).Return(nil)

	mockBackfiller.On("BackfillOwner", mock.Anything, second).Return(2, nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-2", domain.EmbeddingJobStatusCompleted, "").Return(nil)

	worker := NewEmbeddingWorker(mockRepo, mockBackfiller, nil, nil)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockBackfiller.AssertExpectations(t)
}

func TestEmbeddingWorker_ProcessJobs_RepositoryError(t *testing.T) {
	mockRepo := new(MockEmbeddingJobRepository)
	mockBackfiller := new(MockBackfiller)

	mockRepo.On("ClaimPending", mock.Anything, claimBatch).Return(nil, errors.New("database error"))

	worker := NewEmbeddingWorker(mockRepo, mockBackfiller, nil, nil)
	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch pending jobs")
	mockRepo.AssertExpectations(t)
}
