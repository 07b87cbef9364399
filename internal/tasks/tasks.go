package tasks

import "encoding/json"

// 定义任务类型常量
const (
	TypeAwardAudit    = "award:audit"    // 加分审计日志持久化任务
	TypeRequestExpiry = "request:expire" // 过期举手请求清理任务（周期性）
)

// AwardAuditPayload 定义了加分审计任务的数据结构
type AwardAuditPayload struct {
	RecordID  uint `json:"recordId"`
	StudentID uint `json:"studentId"`
	ActorID   uint `json:"actorId"`
	Points    uint `json:"points"`
}

// NewAwardAuditTask 构造加分审计任务的序列化 payload
func NewAwardAuditTask(recordID, studentID, actorID, points uint) ([]byte, error) {
	payload := AwardAuditPayload{
		RecordID:  recordID,
		StudentID: studentID,
		ActorID:   actorID,
		Points:    points,
	}
	return json.Marshal(payload)
}

// RequestExpiryPayload 定义了过期清理任务的数据结构
type RequestExpiryPayload struct {
	// MaxAgeMinutes 是请求被视为过期的年龄阈值（分钟）
	MaxAgeMinutes int `json:"maxAgeMinutes"`
}

// NewRequestExpiryTask 构造过期清理任务的序列化 payload
func NewRequestExpiryTask(maxAgeMinutes int) ([]byte, error) {
	return json.Marshal(RequestExpiryPayload{MaxAgeMinutes: maxAgeMinutes})
}
