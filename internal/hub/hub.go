// Package hub 实现实时扇出通道：维护在线连接、userID 到连接集合的注册表，
// 并把生命周期事件广播给所有连接。通道纯粹是通知总线——从不接触 Ledger Store，
// 事件只是客户端刷新本地视图的提示。
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	// 服务端活性扫描的周期，独立于客户端的心跳
	sweepInterval = 60 * time.Second

	// 超过该时长没有任何入站活动的连接视为半关闭，强制终止以回收资源
	staleAfter = 2 * pongWait
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "frame"
	Client  *Client // 消息关联的客户端
	RawData []byte  // 仅用于 frame (原始 WebSocket 消息)
}

// Hub 维护活跃客户端集合并协调消息处理。
// 进程启动时构造一次，通过引用传递给需要触发广播的层，
// 关闭时由 Stop 排空——不存在包级可变状态。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan HubMessage

	// 全部在线连接
	clients map[*Client]bool

	// userID → 连接集合（支持多标签页）。连接集合为空时删除映射项。
	users map[uint]map[*Client]bool

	// 保护 clients 和 users 的读写锁
	mu sync.RWMutex

	// 关闭信号
	quit     chan struct{}
	quitOnce sync.Once
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub() *Hub {
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		clients:     make(map[*Client]bool),
		users:       make(map[uint]map[*Client]bool),
		quit:        make(chan struct{}),
	}
}

// Run 启动 Hub 的主事件处理循环和周期性活性扫描。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "frame":
				h.handleFrame(msg.Client, msg.RawData)
			default:
				log.Warnf("Hub: received unknown message type: %s", msg.Type)
			}
		case <-sweepTicker.C:
			h.sweepStaleConnections()
		case <-h.quit:
			log.Info("Hub is shutting down...")
			h.closeAllClients()
			return
		}
	}
}

// Stop 通知 Hub 停止并关闭全部连接
func (h *Hub) Stop() {
	h.quitOnce.Do(func() { close(h.quit) })
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 这是 Client 向 Hub 发送消息的安全方式。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// Broadcast 把事件发送给每一个当前在线的连接，best-effort：
// 对单个连接的发送失败被捕获并忽略，绝不中止对其余连接的广播。
func (h *Hub) Broadcast(event domain.Event) {
	message, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).WithField("event_type", event.Type).Error("Hub: failed to marshal event for broadcast")
		return
	}

	// 创建接收者列表的副本，避免长时间持有锁
	h.mu.RLock()
	clientsToSend := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clientsToSend = append(clientsToSend, client)
	}
	h.mu.RUnlock()

	if len(clientsToSend) == 0 {
		return
	}

	logrus.WithFields(logrus.Fields{
		"event_type":      event.Type,
		"recipient_count": len(clientsToSend),
	}).Debug("Broadcasting event to clients")

	for _, client := range clientsToSend {
		// 非阻塞发送，避免单个慢客户端阻塞广播。
		// send 通道永不关闭，快照后才注销的客户端也能安全接收发送
		select {
		case <-client.done:
			// 快照与发送之间客户端已注销，跳过
		case client.send <- message:
		default:
			logrus.WithField("user_id", client.UserID()).
				Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// ConnectionCount 返回当前在线连接总数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UserConnectionCount 返回某用户当前的连接数（多标签页）
func (h *Hub) UserConnectionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	logrus.Debug("Client registered to Hub")

	// 问候事件，告知客户端连接已建立
	client.sendEvent(domain.Event{Type: domain.EventWelcome})
}

// unregisterClient 处理客户端注销逻辑：从注册表移除，
// userID 的连接集合变空时删除映射项，不留下任何状态。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to unregister a nil client")
		return
	}

	h.mu.Lock()
	if _, exists := h.clients[client]; !exists {
		h.mu.Unlock()
		return // 重复注销，无操作
	}
	delete(h.clients, client)

	if userID := client.UserID(); userID != 0 {
		if conns, ok := h.users[userID]; ok {
			delete(conns, client)
			if len(conns) == 0 {
				delete(h.users, userID)
			}
		}
	}
	h.mu.Unlock()

	// 发出关闭信号，这将导致其 WritePump 退出
	client.shutdown()
	logrus.WithField("user_id", client.UserID()).Debug("Client unregistered from Hub")
}

// handleFrame 处理来自客户端的单个 JSON 文本帧 {type, payload}。
// 本层信任 join 声明的身份——授权在事件发布前的 HTTP 操作层完成，
// 这里不是安全边界。
func (h *Hub) handleFrame(client *Client, raw []byte) {
	if client == nil {
		return
	}

	var frame domain.Event
	if err := json.Unmarshal(raw, &frame); err != nil {
		logrus.WithError(err).Debug("Hub: dropping malformed frame")
		return
	}

	switch frame.Type {
	case domain.EventPing:
		// 心跳，无副作用
		client.sendEvent(domain.Event{Type: domain.EventPong})
	case domain.EventJoin:
		var payload domain.JoinPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.UserID == 0 {
			logrus.Debug("Hub: dropping join frame with invalid payload")
			return
		}
		h.joinUser(client, payload.UserID)
	default:
		logrus.WithField("frame_type", frame.Type).Debug("Hub: ignoring unsupported frame type")
	}
}

// joinUser 把连接记入 userID 的连接集合并确认
func (h *Hub) joinUser(client *Client, userID uint) {
	h.mu.Lock()
	// 同一连接重复 join：先从旧身份移除
	if prev := client.UserID(); prev != 0 && prev != userID {
		if conns, ok := h.users[prev]; ok {
			delete(conns, client)
			if len(conns) == 0 {
				delete(h.users, prev)
			}
		}
	}
	client.setUserID(userID)
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[*Client]bool)
	}
	h.users[userID][client] = true
	h.mu.Unlock()

	client.sendEvent(domain.Event{Type: domain.EventJoinConfirmed})
	logrus.WithField("user_id", userID).Debug("Client joined")
}

// sweepStaleConnections 强制终止半关闭的连接以回收资源。
// 关闭底层连接会让该客户端的 ReadPump 退出并走正常注销路径。
func (h *Hub) sweepStaleConnections() {
	h.mu.RLock()
	var stale []*Client
	for client := range h.clients {
		if client.idleFor() > staleAfter {
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stale {
		logrus.WithField("user_id", client.UserID()).Info("Liveness sweep: terminating stale connection")
		client.CloseConn()
	}
}

// closeAllClients 在 Hub 停止时关闭全部连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.users = make(map[uint]map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.shutdown()
		client.CloseConn()
	}
}
