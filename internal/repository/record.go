package repository

import (
	"context"
	"time"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
)

// RecordRepository 定义了参与积分记录的存储操作。
type RecordRepository interface {
	// Create 持久化一条新的积分记录。记录创建后除 Hidden 标志外不可变。
	Create(ctx context.Context, record *domain.ParticipationRecord) error

	// ListByStudent 返回某学生的记录，按创建时间升序。
	// includeHidden 为 false 时过滤掉隐藏记录。
	ListByStudent(ctx context.Context, studentID uint, includeHidden bool) ([]domain.ParticipationRecord, error)

	// ListAll 返回全部记录（教师视图），按创建时间升序。
	ListAll(ctx context.Context, includeHidden bool) ([]domain.ParticipationRecord, error)

	// SumPointsByStudent 计算某学生所有记录的分数总和。
	// 注意：隐藏记录同样计入总分（与展示列表使用不同的谓词，是文档化行为）。
	SumPointsByStudent(ctx context.Context, studentID uint) (int64, error)

	// DeleteByDateRange 批量删除 [from, to) 区间内创建的记录，返回删除数量。
	// 这是记录的唯一删除路径，不可逆。
	DeleteByDateRange(ctx context.Context, from, to time.Time) (int64, error)
}

// AuditRepository 定义了加分审计日志的存储操作（仅追加）。
type AuditRepository interface {
	Save(ctx context.Context, audit *domain.AwardAudit) error
}
