package domain

import "time"

// ParticipationRecord 表示一次加分事件。
// 创建后除 Hidden 标志外不可变；分数累加到学生的运行总分。
// Hidden 不影响总分计算（管理性软隐藏，不影响计分）。
type ParticipationRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"index;not null" json:"studentId"`
	Points    uint      `gorm:"not null" json:"points"`
	Feedback  string    `gorm:"type:text" json:"feedback"`
	Note      string    `gorm:"type:text" json:"note"`
	Hidden    bool      `gorm:"not null;default:false" json:"hidden"`
	CreatedAt time.Time `gorm:"index;autoCreateTime" json:"createdAt"`
}
