package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
)

// RecordRepository 是 repository.RecordRepository 的 testify mock 实现。
type RecordRepository struct {
	mock.Mock
}

func (m *RecordRepository) Create(ctx context.Context, record *domain.ParticipationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *RecordRepository) ListByStudent(ctx context.Context, studentID uint, includeHidden bool) ([]domain.ParticipationRecord, error) {
	args := m.Called(ctx, studentID, includeHidden)
	if records, ok := args.Get(0).([]domain.ParticipationRecord); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) ListAll(ctx context.Context, includeHidden bool) ([]domain.ParticipationRecord, error) {
	args := m.Called(ctx, includeHidden)
	if records, ok := args.Get(0).([]domain.ParticipationRecord); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) SumPointsByStudent(ctx context.Context, studentID uint) (int64, error) {
	args := m.Called(ctx, studentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RecordRepository) DeleteByDateRange(ctx context.Context, from, to time.Time) (int64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(int64), args.Error(1)
}

// AuditRepository 是 repository.AuditRepository 的 testify mock 实现。
type AuditRepository struct {
	mock.Mock
}

func (m *AuditRepository) Save(ctx context.Context, audit *domain.AwardAudit) error {
	args := m.Called(ctx, audit)
	return args.Error(0)
}
