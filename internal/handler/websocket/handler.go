package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/abhaychandra123/ent615Parti/internal/hub"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 是允许升级的浏览器来源，与 HTTP 层的 CORS 配置一致。
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// 非浏览器客户端不携带 Origin 头
			if origin == "" {
				return true
			}
			return origin == allowedOrigin
		},
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		hub:      h,
	}
}

// HandleConnection 处理实时通道的升级请求。GET /ws。
// 路由受 Auth 中间件保护；hub 层的身份仍由客户端连接后的 join 帧声明，
// 授权在 HTTP 操作层完成，hub 不是安全边界。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	logCtx := logrus.WithField("client_ip", c.ClientIP())

	// 确认请求经过了认证中间件
	if _, exists := c.Get("user_id"); !exists {
		logCtx.Warn("WS Handler: user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return // 返回 HTTP 错误，此时还未升级到 WebSocket
	}

	// 升级 HTTP 连接到 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 方法会自动发送 HTTP 错误响应，这里只需要记录日志
		logCtx.WithError(err).Error("WS Handler: failed to upgrade connection")
		return
	}
	logCtx.Debug("WS Handler: connection upgraded to WebSocket")

	client := hub.NewClient(h.hub, conn)

	registerMsg := hub.HubMessage{
		Type:   "register",
		Client: client,
	}
	if !h.hub.QueueMessage(registerMsg) {
		// Hub 的通道满了，注册失败
		logCtx.Error("WS Handler: hub message channel full, failed to register client")
		client.CloseConn()
		return
	}

	// 启动客户端的读写 goroutine；
	// 后续的 WebSocket 通信由 ReadPump 和 WritePump 处理
	client.Run()
	logCtx.Debug("WS Handler: client pumps started")
}
