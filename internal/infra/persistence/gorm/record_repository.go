package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
)

// GormRecordRepository 是 RecordRepository 接口的 GORM 实现
type GormRecordRepository struct {
	db *gorm.DB
}

// NewGormRecordRepository 创建 GormRecordRepository 实例
func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRecordRepository")
	}
	return &GormRecordRepository{db: db}
}

// Create 实现创建积分记录
func (r *GormRecordRepository) Create(ctx context.Context, record *domain.ParticipationRecord) error {
	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		return fmt.Errorf("gorm: create participation record (student %d): %w", record.StudentID, err)
	}
	return nil
}

// ListByStudent 实现返回某学生的记录
func (r *GormRecordRepository) ListByStudent(ctx context.Context, studentID uint, includeHidden bool) ([]domain.ParticipationRecord, error) {
	var records []domain.ParticipationRecord
	query := r.db.WithContext(ctx).Where("student_id = ?", studentID)
	if !includeHidden {
		query = query.Where("hidden = ?", false)
	}
	err := query.Order("created_at asc").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list records for student %d: %w", studentID, err)
	}
	return records, nil
}

// ListAll 实现返回全部记录（教师视图）
func (r *GormRecordRepository) ListAll(ctx context.Context, includeHidden bool) ([]domain.ParticipationRecord, error) {
	var records []domain.ParticipationRecord
	query := r.db.WithContext(ctx).Model(&domain.ParticipationRecord{})
	if !includeHidden {
		query = query.Where("hidden = ?", false)
	}
	err := query.Order("created_at asc").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list all records: %w", err)
	}
	return records, nil
}

// SumPointsByStudent 实现计算学生总分。
// 隐藏记录同样计入——总分和展示列表使用不同的谓词。
func (r *GormRecordRepository) SumPointsByStudent(ctx context.Context, studentID uint) (int64, error) {
	var total int64
	// COALESCE 处理没有任何记录时 SUM 返回 NULL 的情况
	err := r.db.WithContext(ctx).
		Model(&domain.ParticipationRecord{}).
		Where("student_id = ?", studentID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: sum points for student %d: %w", studentID, err)
	}
	return total, nil
}

// DeleteByDateRange 实现按日期范围批量删除记录，返回删除数量
func (r *GormRecordRepository) DeleteByDateRange(ctx context.Context, from, to time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Delete(&domain.ParticipationRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: delete records in [%v, %v): %w", from, to, result.Error)
	}
	return result.RowsAffected, nil
}

// GormAuditRepository 是 AuditRepository 接口的 GORM 实现
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository 创建 GormAuditRepository 实例
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	if db == nil {
		panic("database connection cannot be nil for GormAuditRepository")
	}
	return &GormAuditRepository{db: db}
}

// Save 实现追加审计日志
func (r *GormAuditRepository) Save(ctx context.Context, audit *domain.AwardAudit) error {
	err := r.db.WithContext(ctx).Create(audit).Error
	if err != nil {
		return fmt.Errorf("gorm: save award audit (record %d): %w", audit.RecordID, err)
	}
	return nil
}
