package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/infra/persistence/memory"
	"github.com/abhaychandra123/ent615Parti/internal/repository/mocks"
	"github.com/abhaychandra123/ent615Parti/internal/service"
)

// newRequestServiceFixture 组装一个基于内存仓库的 RequestService，
// 返回协作对象供断言
func newRequestServiceFixture(t *testing.T) (*service.RequestService, *memory.UserRepository, *memory.RequestRepository, *captureBroadcaster) {
	t.Helper()
	users := memory.NewUserRepository()
	requests := memory.NewRequestRepository()
	broadcaster := &captureBroadcaster{}
	svc := service.NewRequestService(requests, users, newFakeStateRepository(), broadcaster)
	return svc, users, requests, broadcaster
}

func seedUser(t *testing.T, users *memory.UserRepository, username, role string) *domain.User {
	t.Helper()
	user := &domain.User{Username: username, Password: "hashed", Name: username, Role: role}
	require.NoError(t, users.Save(context.Background(), user))
	return user
}

func TestRequestService_Open_Success(t *testing.T) {
	svc, users, _, broadcaster := newRequestServiceFixture(t)
	ctx := context.Background()
	student := seedUser(t, users, "alice", domain.RoleStudent)

	request, err := svc.Open(ctx, student.ID, "question about homework")

	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Equal(t, domain.RequestStatusOpen, request.Status)
	assert.Equal(t, student.ID, request.StudentID)
	assert.Equal(t, "question about homework", request.Note)

	// 广播一条 participationRequest 事件，载荷携带请求和学生公开信息
	events := broadcaster.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventRequestOpened, events[0].Type)
	var payload domain.RequestOpenedPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, request.ID, payload.Request.ID)
	assert.Equal(t, student.ID, payload.Student.ID)
	assert.Equal(t, "alice", payload.Student.Username)
}

func TestRequestService_Open_DuplicateRejected(t *testing.T) {
	// 不变量: 同一学生任意时刻最多一条 open 请求
	svc, users, _, broadcaster := newRequestServiceFixture(t)
	ctx := context.Background()
	student := seedUser(t, users, "bob", domain.RoleStudent)

	_, err := svc.Open(ctx, student.ID, "")
	require.NoError(t, err)

	_, err = svc.Open(ctx, student.ID, "second attempt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrDuplicateRequest))

	// 拒绝的尝试不产生广播
	assert.Equal(t, 1, broadcaster.CountByType(domain.EventRequestOpened))

	// 不影响其他学生
	other := seedUser(t, users, "carol", domain.RoleStudent)
	_, err = svc.Open(ctx, other.ID, "")
	assert.NoError(t, err)
}

func TestRequestService_Open_LockContention(t *testing.T) {
	// 举手锁被占用意味着同一学生的另一次 open 正在进行中，
	// 对后来者而言结局与重复请求相同
	mockRequestRepo := new(mocks.RequestRepository)
	mockUserRepo := new(mocks.UserRepository)
	mockStateRepo := new(mocks.StateRepository)
	broadcaster := &captureBroadcaster{}
	svc := service.NewRequestService(mockRequestRepo, mockUserRepo, mockStateRepo, broadcaster)

	ctx := context.Background()
	student := &domain.User{ID: 7, Username: "dave", Role: domain.RoleStudent}
	mockUserRepo.On("FindByID", ctx, uint(7)).Return(student, nil).Once()
	mockStateRepo.On("AcquireStudentLock", ctx, uint(7), mock.AnythingOfType("time.Duration")).
		Return(false, nil).Once()

	_, err := svc.Open(ctx, 7, "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrDuplicateRequest))
	mockRequestRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, broadcaster.Events())
	mockUserRepo.AssertExpectations(t)
	mockStateRepo.AssertExpectations(t)
}

func TestRequestService_Open_NotAStudent(t *testing.T) {
	svc, users, _, _ := newRequestServiceFixture(t)
	instructor := seedUser(t, users, "prof", domain.RoleInstructor)

	_, err := svc.Open(context.Background(), instructor.ID, "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidStudent))
}

func TestRequestService_Open_UnknownStudent(t *testing.T) {
	svc, _, _, _ := newRequestServiceFixture(t)

	_, err := svc.Open(context.Background(), 999, "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidStudent))
}

func TestRequestService_Close_ByOwner(t *testing.T) {
	svc, users, _, broadcaster := newRequestServiceFixture(t)
	ctx := context.Background()
	student := seedUser(t, users, "erin", domain.RoleStudent)

	request, err := svc.Open(ctx, student.ID, "")
	require.NoError(t, err)

	closed, err := svc.Close(ctx, request.ID, student.ID, domain.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusClosed, closed.Status)

	events := broadcaster.Events()
	require.Equal(t, 1, broadcaster.CountByType(domain.EventRequestClosed))
	var payload domain.RequestClosedPayload
	require.NoError(t, json.Unmarshal(events[len(events)-1].Payload, &payload))
	assert.Equal(t, request.ID, payload.RequestID)
}

func TestRequestService_Close_Idempotent(t *testing.T) {
	// 关闭已关闭的请求是无操作成功: 返回当前状态，不产生第二次广播
	svc, users, _, broadcaster := newRequestServiceFixture(t)
	ctx := context.Background()
	student := seedUser(t, users, "frank", domain.RoleStudent)

	request, err := svc.Open(ctx, student.ID, "")
	require.NoError(t, err)

	_, err = svc.Close(ctx, request.ID, student.ID, domain.RoleStudent)
	require.NoError(t, err)

	again, err := svc.Close(ctx, request.ID, student.ID, domain.RoleStudent)
	require.NoError(t, err, "重复关闭应是幂等成功")
	assert.Equal(t, domain.RequestStatusClosed, again.Status)
	assert.Equal(t, 1, broadcaster.CountByType(domain.EventRequestClosed), "幂等关闭不应重复广播")
}

func TestRequestService_Close_ForbiddenForOtherStudent(t *testing.T) {
	svc, users, _, _ := newRequestServiceFixture(t)
	ctx := context.Background()
	owner := seedUser(t, users, "grace", domain.RoleStudent)
	intruder := seedUser(t, users, "heidi", domain.RoleStudent)

	request, err := svc.Open(ctx, owner.ID, "")
	require.NoError(t, err)

	_, err = svc.Close(ctx, request.ID, intruder.ID, domain.RoleStudent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrForbidden))

	// 请求保持 open
	open, listErr := svc.ListOpen(ctx)
	require.NoError(t, listErr)
	assert.Len(t, open, 1)
}

func TestRequestService_Close_ByInstructor(t *testing.T) {
	// 教师可以关闭任何请求
	svc, users, _, _ := newRequestServiceFixture(t)
	ctx := context.Background()
	student := seedUser(t, users, "ivan", domain.RoleStudent)
	instructor := seedUser(t, users, "teacher", domain.RoleInstructor)

	request, err := svc.Open(ctx, student.ID, "")
	require.NoError(t, err)

	closed, err := svc.Close(ctx, request.ID, instructor.ID, domain.RoleInstructor)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusClosed, closed.Status)
}

func TestRequestService_Close_NotFound(t *testing.T) {
	svc, _, _, _ := newRequestServiceFixture(t)

	_, err := svc.Close(context.Background(), 42, 1, domain.RoleInstructor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRequestNotFound))
}

func TestRequestService_OpenAfterClose(t *testing.T) {
	// 关闭后可以再次举手
	svc, users, _, _ := newRequestServiceFixture(t)
	ctx := context.Background()
	student := seedUser(t, users, "judy", domain.RoleStudent)

	first, err := svc.Open(ctx, student.ID, "")
	require.NoError(t, err)
	_, err = svc.Close(ctx, first.ID, student.ID, domain.RoleStudent)
	require.NoError(t, err)

	second, err := svc.Open(ctx, student.ID, "again")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, domain.RequestStatusOpen, second.Status)
}

func TestRequestService_ListOpen_OrderedByCreation(t *testing.T) {
	// 先举手先展示
	svc, users, requests, _ := newRequestServiceFixture(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	students := []*domain.User{
		seedUser(t, users, "s1", domain.RoleStudent),
		seedUser(t, users, "s2", domain.RoleStudent),
		seedUser(t, users, "s3", domain.RoleStudent),
	}
	// 乱序写入，带显式时间戳
	offsets := []time.Duration{2 * time.Minute, 0, 1 * time.Minute}
	for i, student := range students {
		require.NoError(t, requests.Create(ctx, &domain.ParticipationRequest{
			StudentID: student.ID,
			Status:    domain.RequestStatusOpen,
			CreatedAt: base.Add(offsets[i]),
		}))
	}

	open, err := svc.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, students[1].ID, open[0].StudentID)
	assert.Equal(t, students[2].ID, open[1].StudentID)
	assert.Equal(t, students[0].ID, open[2].StudentID)
}

func TestRequestService_CloseExpired(t *testing.T) {
	svc, users, requests, broadcaster := newRequestServiceFixture(t)
	ctx := context.Background()

	stale1 := seedUser(t, users, "old1", domain.RoleStudent)
	stale2 := seedUser(t, users, "old2", domain.RoleStudent)
	fresh := seedUser(t, users, "fresh", domain.RoleStudent)

	require.NoError(t, requests.Create(ctx, &domain.ParticipationRequest{
		StudentID: stale1.ID, Status: domain.RequestStatusOpen, CreatedAt: time.Now().Add(-10 * time.Hour),
	}))
	require.NoError(t, requests.Create(ctx, &domain.ParticipationRequest{
		StudentID: stale2.ID, Status: domain.RequestStatusOpen, CreatedAt: time.Now().Add(-9 * time.Hour),
	}))
	require.NoError(t, requests.Create(ctx, &domain.ParticipationRequest{
		StudentID: fresh.ID, Status: domain.RequestStatusOpen, CreatedAt: time.Now().Add(-time.Minute),
	}))

	closed, err := svc.CloseExpired(ctx, time.Now().Add(-8*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, closed)
	assert.Equal(t, 2, broadcaster.CountByType(domain.EventRequestClosed))

	open, err := svc.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, fresh.ID, open[0].StudentID)
}
