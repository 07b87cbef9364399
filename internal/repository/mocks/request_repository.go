package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
)

// RequestRepository 是 repository.RequestRepository 的 testify mock 实现。
type RequestRepository struct {
	mock.Mock
}

func (m *RequestRepository) Create(ctx context.Context, request *domain.ParticipationRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *RequestRepository) FindByID(ctx context.Context, id uint) (*domain.ParticipationRequest, error) {
	args := m.Called(ctx, id)
	if request, ok := args.Get(0).(*domain.ParticipationRequest); ok {
		return request, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RequestRepository) FindOpenByStudent(ctx context.Context, studentID uint) (*domain.ParticipationRequest, error) {
	args := m.Called(ctx, studentID)
	if request, ok := args.Get(0).(*domain.ParticipationRequest); ok {
		return request, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RequestRepository) ListOpen(ctx context.Context) ([]domain.ParticipationRequest, error) {
	args := m.Called(ctx)
	if requests, ok := args.Get(0).([]domain.ParticipationRequest); ok {
		return requests, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RequestRepository) ListOpenBefore(ctx context.Context, cutoff time.Time) ([]domain.ParticipationRequest, error) {
	args := m.Called(ctx, cutoff)
	if requests, ok := args.Get(0).([]domain.ParticipationRequest); ok {
		return requests, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RequestRepository) Save(ctx context.Context, request *domain.ParticipationRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}
