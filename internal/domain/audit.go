package domain

import "time"

// AwardAudit 是加分操作的追加式审计日志。
// 由后台 worker 异步写入，绝不阻塞加分路径。
type AwardAudit struct {
	ID        uint      `gorm:"primaryKey"`
	RecordID  uint      `gorm:"index;not null"`
	StudentID uint      `gorm:"index;not null"`
	ActorID   uint      `gorm:"not null"` // 执行加分的教师 ID
	Points    uint      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
