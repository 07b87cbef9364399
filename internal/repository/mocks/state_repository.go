package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// StateRepository 是 repository.StateRepository 的 testify mock 实现。
type StateRepository struct {
	mock.Mock
}

func (m *StateRepository) AcquireStudentLock(ctx context.Context, studentID uint, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, studentID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *StateRepository) ReleaseStudentLock(ctx context.Context, studentID uint) error {
	args := m.Called(ctx, studentID)
	return args.Error(0)
}

func (m *StateRepository) GetTotalPointsCache(ctx context.Context, studentID uint) (int64, error) {
	args := m.Called(ctx, studentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StateRepository) SetTotalPointsCache(ctx context.Context, studentID uint, total int64, ttl time.Duration) error {
	args := m.Called(ctx, studentID, total, ttl)
	return args.Error(0)
}

func (m *StateRepository) InvalidateTotalPoints(ctx context.Context, studentID uint) error {
	args := m.Called(ctx, studentID)
	return args.Error(0)
}

func (m *StateRepository) InvalidateAllTotals(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}
