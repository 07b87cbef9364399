package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/service"
)

// RecordHandler 封装了积分记录相关的 HTTP 处理逻辑
type RecordHandler struct {
	awardService *service.AwardService
}

// NewRecordHandler 创建 RecordHandler 实例
func NewRecordHandler(awardService *service.AwardService) *RecordHandler {
	return &RecordHandler{awardService: awardService}
}

// AwardRequestBody 定义加分请求的结构体。
// points 允许为 0（"已确认、不加分"也是合法操作）。
type AwardRequestBody struct {
	StudentID       uint   `json:"studentId" binding:"required"`
	Points          *uint  `json:"points" binding:"required"`
	Feedback        string `json:"feedback" binding:"omitempty,max=1000"`
	Note            string `json:"note" binding:"omitempty,max=500"`
	LinkedRequestID uint   `json:"linkedRequestId"`
}

// Award 处理教师加分。POST /participation-records，仅教师角色
// （由 RequireRole 中间件保证）。
func (h *RecordHandler) Award(c *gin.Context) {
	actorID, _, ok := actorFromContext(c)
	if !ok {
		logrus.Warn("Handler.Award: actor not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var body AwardRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		logrus.WithError(err).Warn("Handler.Award: invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	record, err := h.awardService.Award(c.Request.Context(), actorID, service.AwardInput{
		StudentID:       body.StudentID,
		Points:          *body.Points,
		Feedback:        body.Feedback,
		Note:            body.Note,
		LinkedRequestID: body.LinkedRequestID,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"actor_id": actorID, "record_id": record.ID}).
		Info("Handler.Award: participation record created")
	c.JSON(http.StatusCreated, record)
}

// List 返回积分记录。GET /participation-records?showHidden=true。
// 学生只看到自己的记录，教师看到全部。
func (h *RecordHandler) List(c *gin.Context) {
	actorID, actorRole, ok := actorFromContext(c)
	if !ok {
		logrus.Warn("Handler.List: actor not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	showHidden := c.Query("showHidden") == "true"

	records, err := h.awardService.List(c.Request.Context(), actorID, actorRole, showHidden)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if records == nil {
		records = []domain.ParticipationRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// DeleteToday 批量删除今天创建的记录（管理性纠错，不可逆）。
// DELETE /participation-records/today，仅教师角色。
func (h *RecordHandler) DeleteToday(c *gin.Context) {
	count, err := h.awardService.DeleteToday(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// StudentPoints 返回某学生的总分。GET /students/:id/participation-points。
// 学生只能查自己的，教师可以查任何学生。
func (h *RecordHandler) StudentPoints(c *gin.Context) {
	actorID, actorRole, ok := actorFromContext(c)
	if !ok {
		logrus.Warn("Handler.StudentPoints: actor not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	idStr := c.Param("id")
	id64, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		logrus.WithError(err).Warnf("Handler.StudentPoints: invalid student id format: %s", idStr)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid student id format"})
		return
	}
	studentID := uint(id64)

	// 本人或教师
	if actorRole != domain.RoleInstructor && actorID != studentID {
		logrus.WithFields(logrus.Fields{"actor_id": actorID, "student_id": studentID}).
			Warn("Handler.StudentPoints: access denied")
		c.JSON(http.StatusForbidden, gin.H{"error": "Students may only view their own points"})
		return
	}

	total, err := h.awardService.TotalPoints(c.Request.Context(), studentID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"studentId": studentID, "points": total})
}
