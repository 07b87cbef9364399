package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/repository"
)

// studentLockTTL 是举手锁的生存时间。锁只覆盖"重复检查 + 插入"的临界区，
// TTL 防止持有者崩溃后死锁。
const studentLockTTL = 5 * time.Second

// RequestService 负责参与请求（举手）的生命周期管理。
// 强制不变量：同一学生在任意时刻最多只有一条 open 状态的请求。
type RequestService struct {
	requestRepo repository.RequestRepository
	userRepo    repository.UserRepository
	stateRepo   repository.StateRepository
	broadcaster Broadcaster
}

// NewRequestService 创建 RequestService 实例。
func NewRequestService(
	requestRepo repository.RequestRepository,
	userRepo repository.UserRepository,
	stateRepo repository.StateRepository,
	broadcaster Broadcaster,
) *RequestService {
	if requestRepo == nil || userRepo == nil || stateRepo == nil {
		panic("All repositories must be non-nil for RequestService")
	}
	if broadcaster == nil {
		panic("Broadcaster cannot be nil for RequestService")
	}
	return &RequestService{
		requestRepo: requestRepo,
		userRepo:    userRepo,
		stateRepo:   stateRepo,
		broadcaster: broadcaster,
	}
}

// Open 为学生创建一条新的 open 请求。
// 重复检查和插入通过按 studentID 的 Redis 锁串行化——这是同一学生
// 多个标签页快速双击"举手"时唯一真正存在竞态的地方。
func (s *RequestService) Open(ctx context.Context, studentID uint, note string) (*domain.ParticipationRequest, error) {
	logCtx := logrus.WithField("student_id", studentID)

	// 1. 确认学生存在且角色正确
	student, err := s.userRepo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("Open request failed: student not found")
			return nil, ErrInvalidStudent
		}
		logCtx.WithError(err).Error("Open request failed: error finding student")
		return nil, ErrInternalServer
	}
	if !student.IsStudent() {
		logCtx.Warn("Open request failed: user is not a student")
		return nil, ErrInvalidStudent
	}

	// 2. 获取该学生的举手锁，串行化检查与插入
	acquired, err := s.stateRepo.AcquireStudentLock(ctx, studentID, studentLockTTL)
	if err != nil {
		logCtx.WithError(err).Error("Open request failed: could not acquire raise lock")
		return nil, ErrInternalServer
	}
	if !acquired {
		// 锁被占用意味着同一学生的另一次 open 正在进行中，
		// 对后来者而言结局与重复请求相同
		logCtx.Warn("Open request rejected: concurrent open in flight")
		return nil, ErrDuplicateRequest
	}
	defer func() {
		if releaseErr := s.stateRepo.ReleaseStudentLock(ctx, studentID); releaseErr != nil {
			logCtx.WithError(releaseErr).Warn("Failed to release raise lock (will expire via TTL)")
		}
	}()

	// 3. 重复检查：已有 open 请求则拒绝
	_, err = s.requestRepo.FindOpenByStudent(ctx, studentID)
	if err == nil {
		logCtx.Warn("Open request rejected: student already has an open request")
		return nil, ErrDuplicateRequest
	}
	if !errors.Is(err, repository.ErrRequestNotFound) {
		logCtx.WithError(err).Error("Open request failed: error checking for existing open request")
		return nil, ErrInternalServer
	}

	// 4. 创建请求
	request := &domain.ParticipationRequest{
		StudentID: studentID,
		Note:      note,
		Status:    domain.RequestStatusOpen,
	}
	if err := s.requestRepo.Create(ctx, request); err != nil {
		logCtx.WithError(err).Error("Open request failed: could not persist request")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("request_id", request.ID)

	// 5. 广播事件（携带请求和学生公开信息，绝不携带凭证）
	s.publish(domain.EventRequestOpened, domain.RequestOpenedPayload{
		Request: *request,
		Student: student.Profile(),
	})

	logCtx.Info("Participation request opened")
	return request, nil
}

// Close 关闭一条请求。学生只能关闭自己的请求，教师可以关闭任何请求。
// 关闭已关闭的请求是幂等的无操作成功：返回当前状态，且不产生第二次广播。
func (s *RequestService) Close(ctx context.Context, requestID, actorID uint, actorRole string) (*domain.ParticipationRequest, error) {
	logCtx := logrus.WithFields(logrus.Fields{"request_id": requestID, "actor_id": actorID})

	request, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			logCtx.Warn("Close request failed: not found")
			return nil, ErrRequestNotFound
		}
		logCtx.WithError(err).Error("Close request failed: error finding request")
		return nil, ErrInternalServer
	}

	if actorRole != domain.RoleInstructor && actorID != request.StudentID {
		logCtx.Warn("Close request forbidden: student may only close their own request")
		return nil, ErrForbidden
	}

	if !request.IsOpen() {
		// 幂等无操作：不重复保存，不重复广播
		logCtx.Debug("Close request: already closed, returning current state")
		return request, nil
	}

	request.Status = domain.RequestStatusClosed
	if err := s.requestRepo.Save(ctx, request); err != nil {
		logCtx.WithError(err).Error("Close request failed: could not persist state transition")
		return nil, ErrInternalServer
	}

	s.publish(domain.EventRequestClosed, domain.RequestClosedPayload{RequestID: request.ID})

	logCtx.Info("Participation request closed")
	return request, nil
}

// ListOpen 返回当前全部 open 请求，按创建时间升序。
// 直读 Ledger Store，每次调用一条查询，不做额外缓存。
func (s *RequestService) ListOpen(ctx context.Context) ([]domain.ParticipationRequest, error) {
	requests, err := s.requestRepo.ListOpen(ctx)
	if err != nil {
		logrus.WithError(err).Error("ListOpen failed")
		return nil, ErrInternalServer
	}
	return requests, nil
}

// CloseExpired 关闭在 cutoff 之前创建且仍为 open 的请求（课堂早已结束），
// 供后台过期清理任务调用。返回关闭的数量。
func (s *RequestService) CloseExpired(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.requestRepo.ListOpenBefore(ctx, cutoff)
	if err != nil {
		logrus.WithError(err).Error("CloseExpired: failed to list stale requests")
		return 0, ErrInternalServer
	}

	closed := 0
	for i := range stale {
		request := stale[i]
		request.Status = domain.RequestStatusClosed
		if err := s.requestRepo.Save(ctx, &request); err != nil {
			logrus.WithError(err).WithField("request_id", request.ID).
				Warn("CloseExpired: failed to close stale request, skipping")
			continue
		}
		s.publish(domain.EventRequestClosed, domain.RequestClosedPayload{RequestID: request.ID})
		closed++
	}
	if closed > 0 {
		logrus.WithField("count", closed).Info("Closed expired participation requests")
	}
	return closed, nil
}

// publish 序列化并广播一个事件。广播是 fire-and-forget，
// 失败只记日志，绝不影响触发它的操作。
func (s *RequestService) publish(eventType string, payload interface{}) {
	event, err := domain.NewEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Error("Failed to marshal event payload, skipping broadcast")
		return
	}
	s.broadcaster.Broadcast(event)
}
