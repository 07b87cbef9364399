// Package rtclient 实现实时通道的客户端：连接、join、心跳、
// 指数退避重连，以及按事件类型分发的订阅回调。
// 收到的事件只是刷新本地状态的提示，权威状态始终来自后续的读取，
// 调用方应另行按固定间隔轮询作为对账机制。
package rtclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
)

const (
	// 连接打开期间的心跳周期
	pingInterval = 30 * time.Second

	// 重连退避：初始 1s，按因子增长，封顶 30s，成功重连后计数归零
	backoffInitial = 1 * time.Second
	backoffFactor  = 1.5
	backoffCeiling = 30 * time.Second
)

// Handler 是事件订阅回调
type Handler func(event domain.Event)

// Client 是实时通道的 WebSocket 客户端。
// 每次拨号尝试递增单调的连接代数计数器；任何在握手完成时代数
// 已不匹配的在途连接都按过期丢弃，防止被取代的连接尝试迟到的
// 打开/关闭事件破坏当前连接的状态。
type Client struct {
	url    string
	userID uint
	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	generation uint64
	attempt    int

	subsMu    sync.RWMutex
	subs      map[string]map[uint64]Handler
	nextSubID uint64

	done     chan struct{}
	doneOnce sync.Once
}

// New 创建实时客户端。url 是 ws:// 升级路径，userID 在连接打开后随 join 发送。
func New(url string, userID uint) *Client {
	return &Client{
		url:    url,
		userID: userID,
		dialer: websocket.DefaultDialer,
		subs:   make(map[string]map[uint64]Handler),
		done:   make(chan struct{}),
	}
}

// Subscribe 注册某事件类型的回调，返回订阅 ID。
// 同一类型支持多个订阅者。
func (c *Client) Subscribe(eventType string, handler Handler) uint64 {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	if _, ok := c.subs[eventType]; !ok {
		c.subs[eventType] = make(map[uint64]Handler)
	}
	c.subs[eventType][id] = handler
	return id
}

// Unsubscribe 取消订阅。幂等：重复取消或取消不存在的 ID 是无操作，
// 且不影响其他订阅者。
func (c *Client) Unsubscribe(eventType string, id uint64) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if handlers, ok := c.subs[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(c.subs, eventType)
		}
	}
}

// Run 维持到服务端的连接直到 ctx 取消或 Close 被调用。
// 意外断开后按指数退避重连。应在单独的 goroutine 中运行。
func (c *Client) Run(ctx context.Context) {
	log := logrus.WithField("component", "rtclient")
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		conn, gen, err := c.dial(ctx)
		if err != nil {
			delay := c.nextBackoff()
			log.WithError(err).Warnf("Connection failed, reconnecting in %s", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}

		// 连接成功：归零退避计数并发送 join
		c.resetBackoff()
		c.sendJoin(conn)
		log.Info("Connected to realtime channel")

		c.readLoop(ctx, conn, gen)

		// readLoop 返回意味着连接关闭；除非是主动退出，否则继续重连
	}
}

// Close 永久停止客户端
func (c *Client) Close() {
	c.doneOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}

// dial 执行一次拨号尝试并推进连接代数。
// 握手完成时如果代数已被更新的尝试取代，则丢弃这个过期连接。
func (c *Client) dial(ctx context.Context) (*websocket.Conn, uint64, error) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, 0, err
	}

	c.mu.Lock()
	if gen != c.generation {
		// 在握手期间有更新的尝试启动，这个连接已过期
		c.mu.Unlock()
		conn.Close()
		return nil, 0, errStaleGeneration
	}
	c.conn = conn
	c.mu.Unlock()
	return conn, gen, nil
}

// readLoop 读取事件并分发给订阅者，同时维持心跳
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	pingDone := make(chan struct{})
	go c.pingLoop(conn, pingDone)
	// 读循环阻塞在 ReadMessage 上；空闲连接上取消只能通过关闭连接来打断，
	// 否则 Run 在 ctx 取消后永不返回
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-c.done:
			conn.Close()
		case <-pingDone:
		}
	}()
	defer close(pingDone)
	defer func() {
		conn.Close()
		c.mu.Lock()
		// 只有仍是当前代的连接才清空引用，过期连接不碰活动状态
		if gen == c.generation && c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			logrus.WithError(err).Debug("rtclient: read loop terminated")
			return
		}

		var event domain.Event
		if err := json.Unmarshal(message, &event); err != nil {
			logrus.WithError(err).Debug("rtclient: dropping malformed event")
			continue
		}
		c.dispatch(event)
	}
}

// pingLoop 每 30s 发送一次应用层 ping。pong 只用于活性观测，
// 不触发重连——重连由读循环的错误驱动。
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ping, _ := json.Marshal(domain.Event{Type: domain.EventPing})
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// sendJoin 在连接打开后立即声明身份
func (c *Client) sendJoin(conn *websocket.Conn) {
	event, err := domain.NewEvent(domain.EventJoin, domain.JoinPayload{UserID: c.userID})
	if err != nil {
		logrus.WithError(err).Error("rtclient: failed to build join event")
		return
	}
	data, _ := json.Marshal(event)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logrus.WithError(err).Warn("rtclient: failed to send join")
	}
}

// dispatch 把事件分发给该类型的全部订阅者
func (c *Client) dispatch(event domain.Event) {
	c.subsMu.RLock()
	handlers := make([]Handler, 0, len(c.subs[event.Type]))
	for _, h := range c.subs[event.Type] {
		handlers = append(handlers, h)
	}
	c.subsMu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// nextBackoff 返回下一次重连前的等待时长并递增尝试计数
func (c *Client) nextBackoff() time.Duration {
	c.mu.Lock()
	attempt := c.attempt
	c.attempt++
	c.mu.Unlock()
	return backoffForAttempt(attempt)
}

func (c *Client) resetBackoff() {
	c.mu.Lock()
	c.attempt = 0
	c.mu.Unlock()
}

// backoffForAttempt 计算第 attempt 次重试的等待时长：
// 初始 1s，按 1.5 倍增长，封顶 30s。
func backoffForAttempt(attempt int) time.Duration {
	delay := float64(backoffInitial)
	for i := 0; i < attempt; i++ {
		delay *= backoffFactor
		if time.Duration(delay) >= backoffCeiling {
			return backoffCeiling
		}
	}
	if time.Duration(delay) > backoffCeiling {
		return backoffCeiling
	}
	return time.Duration(delay)
}

var errStaleGeneration = staleGenerationError{}

type staleGenerationError struct{}

func (staleGenerationError) Error() string { return "rtclient: connection superseded during handshake" }
