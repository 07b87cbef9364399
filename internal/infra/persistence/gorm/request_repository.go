package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/repository"
)

// GormRequestRepository 是 RequestRepository 接口的 GORM 实现
type GormRequestRepository struct {
	db *gorm.DB
}

// NewGormRequestRepository 创建 GormRequestRepository 实例
func NewGormRequestRepository(db *gorm.DB) *GormRequestRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRequestRepository")
	}
	return &GormRequestRepository{db: db}
}

// Create 实现创建参与请求
func (r *GormRequestRepository) Create(ctx context.Context, request *domain.ParticipationRequest) error {
	err := r.db.WithContext(ctx).Create(request).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create participation request (student %d): %w", request.StudentID, err)
	}
	return nil
}

// FindByID 实现根据 ID 查找请求
func (r *GormRequestRepository) FindByID(ctx context.Context, id uint) (*domain.ParticipationRequest, error) {
	var request domain.ParticipationRequest
	err := r.db.WithContext(ctx).First(&request, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRequestNotFound
		}
		return nil, fmt.Errorf("gorm: find participation request by id %d: %w", id, err)
	}
	return &request, nil
}

// FindOpenByStudent 实现查找某学生当前 open 状态的请求
func (r *GormRequestRepository) FindOpenByStudent(ctx context.Context, studentID uint) (*domain.ParticipationRequest, error) {
	var request domain.ParticipationRequest
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND status = ?", studentID, domain.RequestStatusOpen).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRequestNotFound
		}
		return nil, fmt.Errorf("gorm: find open request for student %d: %w", studentID, err)
	}
	return &request, nil
}

// ListOpen 实现按创建时间升序返回所有 open 请求
func (r *GormRequestRepository) ListOpen(ctx context.Context) ([]domain.ParticipationRequest, error) {
	var requests []domain.ParticipationRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.RequestStatusOpen).
		Order("created_at asc"). // 先举手先展示
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list open participation requests: %w", err)
	}
	return requests, nil
}

// ListOpenBefore 实现返回 cutoff 之前创建且仍为 open 的请求
func (r *GormRequestRepository) ListOpenBefore(ctx context.Context, cutoff time.Time) ([]domain.ParticipationRequest, error) {
	var requests []domain.ParticipationRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.RequestStatusOpen, cutoff).
		Order("created_at asc").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list open requests before %v: %w", cutoff, err)
	}
	return requests, nil
}

// Save 实现保存请求的状态变更
func (r *GormRequestRepository) Save(ctx context.Context, request *domain.ParticipationRequest) error {
	err := r.db.WithContext(ctx).Save(request).Error
	if err != nil {
		return fmt.Errorf("gorm: save participation request %d: %w", request.ID, err)
	}
	return nil
}
