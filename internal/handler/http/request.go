package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/service"
)

// RequestHandler 封装了参与请求（举手）相关的 HTTP 处理逻辑
type RequestHandler struct {
	requestService *service.RequestService
}

// NewRequestHandler 创建 RequestHandler 实例
func NewRequestHandler(requestService *service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

// OpenRequestBody 定义举手请求的结构体
type OpenRequestBody struct {
	Note string `json:"note" binding:"omitempty,max=500"`
}

// Open 处理学生举手。POST /participation-requests，仅学生角色。
func (h *RequestHandler) Open(c *gin.Context) {
	actorID, actorRole, ok := actorFromContext(c)
	if !ok {
		logrus.Warn("Handler.Open: actor not found in context, middleware missing or failed?")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	if actorRole != domain.RoleStudent {
		logrus.WithField("user_id", actorID).Warn("Handler.Open: non-student attempted to raise hand")
		c.JSON(http.StatusForbidden, gin.H{"error": "Only students can raise a hand"})
		return
	}

	var body OpenRequestBody
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		logrus.WithError(err).Warn("Handler.Open: invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	request, err := h.requestService.Open(c.Request.Context(), actorID, body.Note)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": actorID, "request_id": request.ID}).
		Info("Handler.Open: participation request created")
	c.JSON(http.StatusCreated, request)
}

// List 返回当前全部 open 请求，按创建时间升序。
// GET /participation-requests，任何已认证用户。
func (h *RequestHandler) List(c *gin.Context) {
	requests, err := h.requestService.ListOpen(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	// 保证空结果序列化为 [] 而不是 null
	if requests == nil {
		requests = []domain.ParticipationRequest{}
	}
	c.JSON(http.StatusOK, requests)
}

// Close 处理撤回/关闭举手。DELETE /participation-requests/:id。
// 学生只能关闭自己的请求，教师可以关闭任何请求。
func (h *RequestHandler) Close(c *gin.Context) {
	actorID, actorRole, ok := actorFromContext(c)
	if !ok {
		logrus.Warn("Handler.Close: actor not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	idStr := c.Param("id")
	id64, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		logrus.WithError(err).Warnf("Handler.Close: invalid request id format: %s", idStr)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request id format"})
		return
	}

	request, err := h.requestService.Close(c.Request.Context(), uint(id64), actorID, actorRole)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": actorID, "request_id": request.ID}).
		Info("Handler.Close: participation request closed")
	c.JSON(http.StatusOK, request)
}
