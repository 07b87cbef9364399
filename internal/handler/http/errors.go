package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/abhaychandra123/ent615Parti/internal/service"
)

// HandleServiceError 把服务层的业务错误映射到 HTTP 状态码：
// 校验/重复状态 → 400，角色/归属不匹配 → 403，未知 ID → 404，其余 → 500。
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateRequest),
		errors.Is(err, service.ErrInvalidStudent),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrRegistrationFailed):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrRequestNotFound), errors.Is(err, service.ErrUserNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAuthenticationFailed):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	default:
		// Log the internal error for debugging
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

// actorFromContext 取出 Auth 中间件放入上下文的 user_id 和 role。
// 缺失说明中间件未运行或失败。
func actorFromContext(c *gin.Context) (uint, string, bool) {
	userIDAny, exists := c.Get("user_id")
	if !exists {
		return 0, "", false
	}
	userID, ok := userIDAny.(uint)
	if !ok {
		return 0, "", false
	}
	roleAny, exists := c.Get("role")
	if !exists {
		return 0, "", false
	}
	role, ok := roleAny.(string)
	if !ok {
		return 0, "", false
	}
	return userID, role, true
}
