package domain

import "encoding/json"

// 实时通道上传输的消息类型。
// 客户端 → 服务端: join, ping
// 服务端 → 客户端: welcome, joinConfirmed, pong 以及业务通知
const (
	EventJoin          = "join"
	EventPing          = "ping"
	EventPong          = "pong"
	EventWelcome       = "welcome"
	EventJoinConfirmed = "joinConfirmed"

	EventRequestOpened  = "participationRequest"
	EventRequestClosed  = "participationRequestDeactivated"
	EventRecordCreated  = "participationRecordCreated"
	EventRecordsDeleted = "participationRecordsDeleted"
)

// Event 是实时通道上的 JSON 文本帧 {type, payload}。
// 事件只是刷新本地视图的提示，不是真相来源——真相始终是持久化的请求/记录状态。
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent 构造一个事件，payload 序列化失败时返回错误。
func NewEvent(eventType string, payload interface{}) (Event, error) {
	if payload == nil {
		return Event{Type: eventType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// RequestOpenedPayload 是 participationRequest 事件的载荷：
// 完整请求加上学生的公开信息。
type RequestOpenedPayload struct {
	Request ParticipationRequest `json:"request"`
	Student PublicProfile        `json:"student"`
}

// RequestClosedPayload 是 participationRequestDeactivated 事件的载荷，只携带请求 ID。
type RequestClosedPayload struct {
	RequestID uint `json:"requestId"`
}

// RecordCreatedPayload 是 participationRecordCreated 事件的载荷。
type RecordCreatedPayload struct {
	Record  ParticipationRecord `json:"record"`
	Student PublicProfile       `json:"student"`
}

// RecordsDeletedPayload 是 participationRecordsDeleted 事件的载荷。
type RecordsDeletedPayload struct {
	Count int64 `json:"count"`
}

// JoinPayload 是客户端 join 消息的载荷。身份由客户端在连接后声明，
// 本层直接信任——授权在事件发布前的 HTTP 操作层强制执行。
type JoinPayload struct {
	UserID uint `json:"userId"`
}
