package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 连接。
// userID 在收到 join 帧之前为 0（连接已建立但身份未声明）。
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// join 后设置的用户 ID，原子读写
	userID uint32

	// 最后一次收到入站数据（消息或 pong）的时间，Unix 纳秒，供活性扫描使用
	lastSeen int64

	// 用于向此客户端发送消息的缓冲通道。
	// 永不关闭: 广播方在锁外并发发送，关闭通道会让迟到的发送 panic。
	// WritePump 的退出由 done 信号驱动。
	send chan []byte

	// 关闭信号，shutdown 关闭一次
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		lastSeen: time.Now().UnixNano(),
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// UserID 返回该连接声明的用户 ID，未 join 时为 0
func (c *Client) UserID() uint { return uint(atomic.LoadUint32(&c.userID)) }

func (c *Client) setUserID(id uint) { atomic.StoreUint32(&c.userID, uint32(id)) }

// CloseConn 强制关闭底层 WebSocket 连接
func (c *Client) CloseConn() { c.conn.Close() }

// idleFor 返回距最后一次入站活动的时长
func (c *Client) idleFor() time.Duration {
	return time.Since(time.Unix(0, atomic.LoadInt64(&c.lastSeen)))
}

func (c *Client) touch() { atomic.StoreInt64(&c.lastSeen, time.Now().UnixNano()) }

// shutdown 通知 WritePump 退出（幂等）
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// sendEvent 把单个事件放入该客户端的发送队列（非阻塞）
func (c *Client) sendEvent(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).Error("Client: failed to marshal event")
		return
	}
	select {
	case <-c.done:
		// 客户端已在注销中，丢弃
	case c.send <- data:
	default:
		logrus.WithField("user_id", c.UserID()).Warn("Client send channel full, event dropped")
	}
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub 的处理通道。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		// 清理操作：请求 Hub 注销此客户端
		unregisterMsg := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logrus.WithField("user_id", c.UserID()).Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithField("user_id", c.UserID()).Debug("ReadPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) // 收到 Pong 后重置读取超时
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("user_id", c.UserID())
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break // 退出循环，触发 defer 中的注销
		}

		c.touch()

		// 只处理文本帧（协议是 JSON 文本帧 {type, payload}）
		if messageType != websocket.TextMessage {
			continue
		}

		frameMsg := HubMessage{
			Type:    "frame",
			Client:  c,
			RawData: message,
		}
		// 非阻塞发送到 Hub，如果 Hub 处理不过来则丢弃
		select {
		case c.hub.messageChan <- frameMsg:
		default:
			logrus.WithField("user_id", c.UserID()).Warn("Hub message channel full, dropping client frame")
		}
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithField("user_id", c.UserID()).Debug("WritePump exited")
		// 不需要在这里 unregister，ReadPump 退出会处理
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("user_id", c.UserID()).WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-c.done:
			// Hub 已注销此客户端
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			// 传输层 Ping，保持连接活跃并检测断开
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithField("user_id", c.UserID()).WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
