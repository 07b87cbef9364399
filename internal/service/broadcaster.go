package service

import "github.com/abhaychandra123/ent615Parti/internal/domain"

// Broadcaster 把生命周期事件推送给所有在线连接。
// 广播是 fire-and-forget：发送失败绝不传播回触发它的操作，
// 客户端会在下一次轮询时看到更新。由 hub 实现。
type Broadcaster interface {
	Broadcast(event domain.Event)
}
