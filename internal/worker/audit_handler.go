package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/repository"
	"github.com/abhaychandra123/ent615Parti/internal/tasks"
)

// AwardAuditHandler 处理加分审计日志的异步持久化任务
type AwardAuditHandler struct {
	auditRepo repository.AuditRepository
}

// NewAwardAuditHandler 创建 Handler 实例
func NewAwardAuditHandler(auditRepo repository.AuditRepository) *AwardAuditHandler {
	return &AwardAuditHandler{auditRepo: auditRepo}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *AwardAuditHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	var payload tasks.AwardAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal audit task payload")
		// payload 损坏，重试无意义
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	audit := &domain.AwardAudit{
		RecordID:  payload.RecordID,
		StudentID: payload.StudentID,
		ActorID:   payload.ActorID,
		Points:    payload.Points,
	}
	if err := h.auditRepo.Save(ctx, audit); err != nil {
		logCtx.WithError(err).Errorf("Failed to save award audit for record %d", payload.RecordID)
		return fmt.Errorf("failed to save audit for record %d: %w", payload.RecordID, err)
	}

	logCtx.WithField("record_id", payload.RecordID).Info("Award audit task processed successfully")
	return nil
}
