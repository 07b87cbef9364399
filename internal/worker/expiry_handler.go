package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/abhaychandra123/ent615Parti/internal/service"
	"github.com/abhaychandra123/ent615Parti/internal/tasks"
)

// defaultRequestMaxAge 是举手请求被视为过期的默认年龄（课堂早已结束）
const defaultRequestMaxAge = 8 * time.Hour

// RequestExpiryHandler 处理过期举手请求的周期性清理任务
type RequestExpiryHandler struct {
	requestService *service.RequestService
}

// NewRequestExpiryHandler 创建 Handler 实例
func NewRequestExpiryHandler(requestService *service.RequestService) *RequestExpiryHandler {
	return &RequestExpiryHandler{requestService: requestService}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RequestExpiryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	maxAge := defaultRequestMaxAge
	if len(t.Payload()) > 0 {
		var payload tasks.RequestExpiryPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal expiry task payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.MaxAgeMinutes > 0 {
			maxAge = time.Duration(payload.MaxAgeMinutes) * time.Minute
		}
	}

	cutoff := time.Now().Add(-maxAge)
	closed, err := h.requestService.CloseExpired(ctx, cutoff)
	if err != nil {
		logCtx.WithError(err).Error("Failed to close expired requests")
		return fmt.Errorf("failed to close expired requests: %w", err)
	}

	if closed > 0 {
		logCtx.WithField("closed", closed).Info("Request expiry task processed")
	}
	return nil
}
