package repository

import (
	"context"
	"time"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
)

// RequestRepository 定义了参与请求（举手）的存储操作。
// Ledger Store 是唯一的真相来源；实时事件只是刷新提示。
type RequestRepository interface {
	// Create 持久化一条新的参与请求。
	Create(ctx context.Context, request *domain.ParticipationRequest) error

	// FindByID 根据 ID 查找请求。不存在时返回 ErrRequestNotFound。
	FindByID(ctx context.Context, id uint) (*domain.ParticipationRequest, error)

	// FindOpenByStudent 查找某学生当前处于 open 状态的请求。
	// 没有时返回 ErrRequestNotFound。用于创建前的重复检查。
	FindOpenByStudent(ctx context.Context, studentID uint) (*domain.ParticipationRequest, error)

	// ListOpen 返回所有 open 状态的请求，按创建时间升序（先举手先展示）。
	ListOpen(ctx context.Context) ([]domain.ParticipationRequest, error)

	// ListOpenBefore 返回在 cutoff 之前创建且仍为 open 的请求，
	// 供后台过期清理任务使用。
	ListOpenBefore(ctx context.Context, cutoff time.Time) ([]domain.ParticipationRequest, error)

	// Save 保存对已有请求的修改（状态转换）。
	Save(ctx context.Context, request *domain.ParticipationRequest) error
}
