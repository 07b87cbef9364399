package service

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/repository"
	"github.com/abhaychandra123/ent615Parti/internal/tasks"
)

// totalPointsCacheTTL 是总分缓存的生存时间。
// 缓存只是读路径优化，写路径主动失效。
const totalPointsCacheTTL = 60 * time.Second

// TaskEnqueuer 是 AwardService 对任务队列的最小依赖，*asynq.Client 满足该接口。
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AwardService 负责加分操作的校验与提交，以及总分聚合查询。
// 加分创建是追加式的：快速连击产生两条独立记录，绝不静默丢弃教师操作——
// 去重（如禁用按钮）是客户端的事。
type AwardService struct {
	recordRepo     repository.RecordRepository
	userRepo       repository.UserRepository
	stateRepo      repository.StateRepository
	requestService *RequestService
	broadcaster    Broadcaster
	enqueuer       TaskEnqueuer
}

// NewAwardService 创建 AwardService 实例。
// enqueuer 可以为 nil（测试场景），此时跳过审计任务入队。
func NewAwardService(
	recordRepo repository.RecordRepository,
	userRepo repository.UserRepository,
	stateRepo repository.StateRepository,
	requestService *RequestService,
	broadcaster Broadcaster,
	enqueuer TaskEnqueuer,
) *AwardService {
	if recordRepo == nil || userRepo == nil || stateRepo == nil {
		panic("All repositories must be non-nil for AwardService")
	}
	if requestService == nil {
		panic("RequestService cannot be nil for AwardService")
	}
	if broadcaster == nil {
		panic("Broadcaster cannot be nil for AwardService")
	}
	return &AwardService{
		recordRepo:     recordRepo,
		userRepo:       userRepo,
		stateRepo:      stateRepo,
		requestService: requestService,
		broadcaster:    broadcaster,
		enqueuer:       enqueuer,
	}
}

// AwardInput 是一次加分操作的输入。
type AwardInput struct {
	StudentID       uint
	Points          uint // 0 分是合法的"已确认、不加分"
	Feedback        string
	Note            string
	LinkedRequestID uint // 0 表示未关联请求
}

// Award 校验并提交一次加分。
// 算法：(1) 创建记录；(2) 若关联了请求则尽力关闭它——请求已被并发撤回时
// 加分依然成功，关闭不在记录创建的事务边界内；(3) 广播 record.created，
// 若第 2 步关闭了请求，Close 自身会广播 request.closed。
func (s *AwardService) Award(ctx context.Context, actorID uint, input AwardInput) (*domain.ParticipationRecord, error) {
	logCtx := logrus.WithFields(logrus.Fields{"actor_id": actorID, "student_id": input.StudentID})

	// 1. studentID 必须解析为 student 角色的用户
	student, err := s.userRepo.FindByID(ctx, input.StudentID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("Award failed: student not found")
			return nil, ErrInvalidStudent
		}
		logCtx.WithError(err).Error("Award failed: error finding student")
		return nil, ErrInternalServer
	}
	if !student.IsStudent() {
		logCtx.Warn("Award failed: target user is not a student")
		return nil, ErrInvalidStudent
	}

	// 2. 创建记录（真相来源先落库）
	record := &domain.ParticipationRecord{
		StudentID: input.StudentID,
		Points:    input.Points,
		Feedback:  input.Feedback,
		Note:      input.Note,
	}
	if err := s.recordRepo.Create(ctx, record); err != nil {
		logCtx.WithError(err).Error("Award failed: could not persist record")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("record_id", record.ID)

	// 3. 关联请求的关闭是 best-effort：加分成功绝不因请求已被关闭而回滚
	if input.LinkedRequestID != 0 {
		if _, closeErr := s.requestService.Close(ctx, input.LinkedRequestID, actorID, domain.RoleInstructor); closeErr != nil {
			logCtx.WithError(closeErr).WithField("linked_request_id", input.LinkedRequestID).
				Warn("Award: best-effort close of linked request failed, award stands")
		}
	}

	// 4. 缓存失效（失败只记日志，缓存会经 TTL 自愈）
	if err := s.stateRepo.InvalidateTotalPoints(ctx, input.StudentID); err != nil {
		logCtx.WithError(err).Warn("Award: failed to invalidate total points cache")
	}

	// 5. 异步审计入队（追加式，绝不阻塞加分路径）
	s.enqueueAudit(record, actorID, logCtx)

	// 6. 广播事件
	s.publish(domain.EventRecordCreated, domain.RecordCreatedPayload{
		Record:  *record,
		Student: student.Profile(),
	})

	logCtx.WithField("points", input.Points).Info("Participation points awarded")
	return record, nil
}

// TotalPoints 返回学生所有记录的分数总和。
// 隐藏记录同样计入：总分和展示列表使用不同的谓词，二者在存在隐藏记录时
// 预期发散，这是文档化行为而非缺陷。
func (s *AwardService) TotalPoints(ctx context.Context, studentID uint) (int64, error) {
	logCtx := logrus.WithField("student_id", studentID)

	// 缓存只是优化，任何缓存错误都降级到直读数据库
	cached, err := s.stateRepo.GetTotalPointsCache(ctx, studentID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		logCtx.WithError(err).Warn("TotalPoints: cache read failed, falling back to store")
	}

	total, err := s.recordRepo.SumPointsByStudent(ctx, studentID)
	if err != nil {
		logCtx.WithError(err).Error("TotalPoints: failed to sum records")
		return 0, ErrInternalServer
	}

	if err := s.stateRepo.SetTotalPointsCache(ctx, studentID, total, totalPointsCacheTTL); err != nil {
		logCtx.WithError(err).Warn("TotalPoints: failed to populate cache")
	}
	return total, nil
}

// List 返回积分记录：学生只看到自己的非隐藏记录，
// 教师看到全部记录，showHidden 控制是否包含隐藏记录。
func (s *AwardService) List(ctx context.Context, actorID uint, actorRole string, showHidden bool) ([]domain.ParticipationRecord, error) {
	var (
		records []domain.ParticipationRecord
		err     error
	)
	if actorRole == domain.RoleInstructor {
		records, err = s.recordRepo.ListAll(ctx, showHidden)
	} else {
		records, err = s.recordRepo.ListByStudent(ctx, actorID, false)
	}
	if err != nil {
		logrus.WithError(err).WithField("actor_id", actorID).Error("List records failed")
		return nil, ErrInternalServer
	}
	return records, nil
}

// DeleteToday 批量删除今天创建的全部记录（管理性纠错工具，不可逆），
// 返回删除数量并广播 participationRecordsDeleted。
func (s *AwardService) DeleteToday(ctx context.Context) (int64, error) {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.Add(24 * time.Hour)

	count, err := s.recordRepo.DeleteByDateRange(ctx, from, to)
	if err != nil {
		logrus.WithError(err).Error("DeleteToday: bulk delete failed")
		return 0, ErrInternalServer
	}

	if err := s.stateRepo.InvalidateAllTotals(ctx); err != nil {
		logrus.WithError(err).Warn("DeleteToday: failed to invalidate totals cache")
	}

	s.publish(domain.EventRecordsDeleted, domain.RecordsDeletedPayload{Count: count})

	logrus.WithField("count", count).Info("Deleted today's participation records")
	return count, nil
}

// enqueueAudit 把审计任务放入队列，失败只记日志。
func (s *AwardService) enqueueAudit(record *domain.ParticipationRecord, actorID uint, logCtx *logrus.Entry) {
	if s.enqueuer == nil {
		return
	}
	payload, err := tasks.NewAwardAuditTask(record.ID, record.StudentID, actorID, record.Points)
	if err != nil {
		logCtx.WithError(err).Warn("Award: failed to build audit task payload")
		return
	}
	task := asynq.NewTask(tasks.TypeAwardAudit, payload)
	if _, err := s.enqueuer.Enqueue(task, asynq.Queue("low")); err != nil {
		logCtx.WithError(err).Warn("Award: failed to enqueue audit task")
	}
}

// publish 序列化并广播一个事件，失败只记日志。
func (s *AwardService) publish(eventType string, payload interface{}) {
	event, err := domain.NewEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Error("Failed to marshal event payload, skipping broadcast")
		return
	}
	s.broadcaster.Broadcast(event)
}
