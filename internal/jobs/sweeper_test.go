package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docrag/internal/domain"
)

type MockPendingOwnerLister struct {
	mock.Mock
}

func (m *MockPendingOwnerLister) ListOwnersWithPending(ctx context.Context, limit int) ([]domain.Owner, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Owner), args.Error(1)
}

type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobQueue) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func jobFor(owner domain.Owner) interface{} {
	return mock.MatchedBy(func(j *domain.EmbeddingJob) bool {
		return j.Owner == owner && j.Status == domain.EmbeddingJobStatusPending && j.ID != ""
	})
}

func TestSweeper_SweepQueuesOnePerOwner(t *testing.T) {
	chunks := new(MockPendingOwnerLister)
	queue := new(MockJobQueue)
	a, b := domain.DocumentOwner("doc-1"), domain.BotOwner("bot-1")

	chunks.On("ListOwnersWithPending", mock.Anything, sweepOwnerLimit).Return([]domain.Owner{a, b}, nil)
	queue.On("Create", mock.Anything, jobFor(a)).Return(nil)
	queue.On("Create", mock.Anything, jobFor(b)).Return(errors.New("insert failed"))

	s := NewSweeper(chunks, queue, 0, nil)
	n, err := s.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	queue.AssertExpectations(t)
}

func TestSweeper_SweepListError(t *testing.T) {
	chunks := new(MockPendingOwnerLister)
	queue := new(MockJobQueue)
	chunks.On("ListOwnersWithPending", mock.Anything, sweepOwnerLimit).Return(nil, errors.New("db down"))

	s := NewSweeper(chunks, queue, 0, nil)
	_, err := s.Sweep(context.Background())

	assert.Error(t, err)
	queue.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSweeper_PruneUsesRetention(t *testing.T) {
	queue := new(MockJobQueue)
	retention := 48 * time.Hour
	queue.On("DeleteFinishedBefore", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		age := time.Since(cutoff)
		return age >= retention && age < retention+time.Minute
	})).Return(int64(3), nil)

	s := NewSweeper(new(MockPendingOwnerLister), queue, retention, nil)
	n, err := s.Prune(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	queue.AssertExpectations(t)
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(new(MockPendingOwnerLister), new(MockJobQueue), 0, nil)
	assert.Error(t, s.Start("not a schedule", "@daily"))

	s = NewSweeper(new(MockPendingOwnerLister), new(MockJobQueue), 0, nil)
	require.NoError(t, s.Start("@every 1h", "@daily"))
	s.Stop()
}
