package scheduler

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-backend/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init("fatal")
	os.Exit(m.Run())
}

type mockAutoReleaser struct {
	mock.Mock
}

func (m *mockAutoReleaser) RunAutoReleaseScan(ctx context.Context, batchSize int) (int, error) {
	args := m.Called(ctx, batchSize)
	return args.Int(0), args.Error(1)
}

func TestAutoReleaseScheduler_RunOnce(t *testing.T) {
	releases := new(mockAutoReleaser)
	s := NewAutoReleaseScheduler(releases, 0, 25)
	ctx := context.Background()

	releases.On("RunAutoReleaseScan", ctx, 25).Return(3, nil)

	released, err := s.RunOnce(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, released)
	releases.AssertExpectations(t)
}

func TestAutoReleaseScheduler_RunOnce_Error(t *testing.T) {
	releases := new(mockAutoReleaser)
	s := NewAutoReleaseScheduler(releases, 0, 25)
	ctx := context.Background()

	releases.On("RunAutoReleaseScan", ctx, 25).Return(0, errors.New("db down"))

	_, err := s.RunOnce(ctx)
	assert.Error(t, err)
}

func TestNewAutoReleaseScheduler_DefaultInterval(t *testing.T) {
	s := NewAutoReleaseScheduler(new(mockAutoReleaser), 0, 10)
	assert.Greater(t, int64(s.interval), int64(0))
}
