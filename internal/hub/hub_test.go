package hub_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/hub"
)

// startHub 启动一个 Hub 和对应的 WebSocket 测试服务器
func startHub(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	h := hub.NewHub()
	go h.Run()
	t.Cleanup(h.Stop)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.NewClient(h, conn)
		if !h.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
			client.CloseConn()
			return
		}
		client.Run()
	}))
	t.Cleanup(server.Close)
	return h, server
}

func dialHub(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent 读取下一个事件帧，超时视为测试失败
func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var event domain.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	event, err := domain.NewEvent(eventType, payload)
	require.NoError(t, err)
	data, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// join 发送 join 帧并消费 welcome 和 joinConfirmed
func join(t *testing.T, conn *websocket.Conn, userID uint) {
	t.Helper()
	welcome := readEvent(t, conn)
	require.Equal(t, domain.EventWelcome, welcome.Type)
	sendEvent(t, conn, domain.EventJoin, domain.JoinPayload{UserID: userID})
	confirmed := readEvent(t, conn)
	require.Equal(t, domain.EventJoinConfirmed, confirmed.Type)
}

func TestHub_RegisterSendsWelcome(t *testing.T) {
	_, server := startHub(t)
	conn := dialHub(t, server)

	event := readEvent(t, conn)
	assert.Equal(t, domain.EventWelcome, event.Type)
}

func TestHub_PingPong(t *testing.T) {
	_, server := startHub(t)
	conn := dialHub(t, server)
	join(t, conn, 1)

	sendEvent(t, conn, domain.EventPing, nil)
	event := readEvent(t, conn)
	assert.Equal(t, domain.EventPong, event.Type)
}

func TestHub_BroadcastReachesAllConnections(t *testing.T) {
	h, server := startHub(t)

	conn1 := dialHub(t, server)
	conn2 := dialHub(t, server)
	conn3 := dialHub(t, server)
	join(t, conn1, 1)
	join(t, conn2, 2)
	join(t, conn3, 3)

	event, err := domain.NewEvent(domain.EventRequestClosed, domain.RequestClosedPayload{RequestID: 7})
	require.NoError(t, err)
	h.Broadcast(event)

	// 每个连接恰好收到一次
	for _, conn := range []*websocket.Conn{conn1, conn2, conn3} {
		received := readEvent(t, conn)
		assert.Equal(t, domain.EventRequestClosed, received.Type)
		var payload domain.RequestClosedPayload
		require.NoError(t, json.Unmarshal(received.Payload, &payload))
		assert.Equal(t, uint(7), payload.RequestID)
	}

	// 没有重复投递
	require.NoError(t, conn1.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = conn1.ReadMessage()
	assert.Error(t, err, "广播后不应有额外的帧")
}

func TestHub_BroadcastToUnjoinedConnection(t *testing.T) {
	// 广播面向全部在线连接，与是否 join 无关
	h, server := startHub(t)
	conn := dialHub(t, server)
	welcome := readEvent(t, conn)
	require.Equal(t, domain.EventWelcome, welcome.Type)

	event, err := domain.NewEvent(domain.EventRecordsDeleted, domain.RecordsDeletedPayload{Count: 3})
	require.NoError(t, err)
	h.Broadcast(event)

	received := readEvent(t, conn)
	assert.Equal(t, domain.EventRecordsDeleted, received.Type)
}

func TestHub_MultiTabRegistry(t *testing.T) {
	// 同一用户多标签页: userID 映射到连接集合
	h, server := startHub(t)

	conn1 := dialHub(t, server)
	conn2 := dialHub(t, server)
	join(t, conn1, 42)
	join(t, conn2, 42)

	require.Eventually(t, func() bool {
		return h.UserConnectionCount(42) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, h.ConnectionCount())

	// 关闭一个标签页，另一个保持在注册表中
	conn1.Close()
	require.Eventually(t, func() bool {
		return h.UserConnectionCount(42) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_UnregisterCleansRegistry(t *testing.T) {
	// 断开后注册表不留任何状态
	h, server := startHub(t)
	conn := dialHub(t, server)
	join(t, conn, 9)

	require.Eventually(t, func() bool {
		return h.UserConnectionCount(9) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 0 && h.UserConnectionCount(9) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_MalformedFrameIgnored(t *testing.T) {
	// 畸形帧被丢弃，连接保持打开
	_, server := startHub(t)
	conn := dialHub(t, server)
	join(t, conn, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json at all")))

	sendEvent(t, conn, domain.EventPing, nil)
	event := readEvent(t, conn)
	assert.Equal(t, domain.EventPong, event.Type)
}

func TestHub_RejoinMovesIdentity(t *testing.T) {
	// 同一连接以不同身份重新 join: 从旧身份的集合移除
	h, server := startHub(t)
	conn := dialHub(t, server)
	join(t, conn, 5)

	require.Eventually(t, func() bool {
		return h.UserConnectionCount(5) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sendEvent(t, conn, domain.EventJoin, domain.JoinPayload{UserID: 6})
	confirmed := readEvent(t, conn)
	require.Equal(t, domain.EventJoinConfirmed, confirmed.Type)

	require.Eventually(t, func() bool {
		return h.UserConnectionCount(5) == 0 && h.UserConnectionCount(6) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastDuringClientTeardown(t *testing.T) {
	// 广播在锁外向每个连接发送；客户端注销与广播并发时，
	// 对注销中连接的发送绝不 panic，也不中止对其余连接的投递
	h, server := startHub(t)

	conns := make([]*websocket.Conn, 0, 8)
	for i := 0; i < 8; i++ {
		conn := dialHub(t, server)
		join(t, conn, uint(i+1))
		conns = append(conns, conn)
	}

	event, err := domain.NewEvent(domain.EventRequestClosed, domain.RequestClosedPayload{RequestID: 1})
	require.NoError(t, err)

	// 多个并发广播方（HTTP 处理器和后台任务都会在 hub goroutine 之外触发广播），
	// 同时关闭全部连接触发注销
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				h.Broadcast(event)
			}
		}()
	}
	for _, conn := range conns {
		conn.Close()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Hub 保持健康: 新连接照常注册并收到广播
	conn := dialHub(t, server)
	join(t, conn, 99)
	h.Broadcast(event)
	received := readEvent(t, conn)
	assert.Equal(t, domain.EventRequestClosed, received.Type)
}

func TestHub_StopClosesConnections(t *testing.T) {
	h, server := startHub(t)
	conn := dialHub(t, server)
	join(t, conn, 1)

	h.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break // 连接被服务端关闭
		}
	}
	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
