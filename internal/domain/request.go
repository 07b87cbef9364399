package domain

import "time"

// 参与请求状态常量。
const (
	RequestStatusOpen   = "open"
	RequestStatusClosed = "closed"
)

// ParticipationRequest 表示一次"举手"事件。
// 不变量：同一学生在任意时刻最多只有一条 open 状态的请求（创建时强制）。
// 生命周期：由学生创建为 open；恰好关闭一次，或由学生主动撤回，
// 或由教师的加分操作关联关闭。closed 是终态，不可重开、不可删除。
type ParticipationRequest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"index;not null" json:"studentId"`
	Note      string    `gorm:"type:text" json:"note"`
	Status    string    `gorm:"type:varchar(16);index;not null;default:open" json:"status"`
	CreatedAt time.Time `gorm:"index;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

// IsOpen 判断请求是否仍处于 open 状态。
func (r *ParticipationRequest) IsOpen() bool { return r.Status == RequestStatusOpen }
