package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/infra/persistence/memory"
	"github.com/abhaychandra123/ent615Parti/internal/service"
	"github.com/abhaychandra123/ent615Parti/internal/tasks"
)

// fakeEnqueuer 捕获入队的任务，供断言使用
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (f *fakeEnqueuer) TypeCount(taskType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, task := range f.tasks {
		if task.Type() == taskType {
			count++
		}
	}
	return count
}

type awardFixture struct {
	awardService   *service.AwardService
	requestService *service.RequestService
	users          *memory.UserRepository
	records        *memory.RecordRepository
	state          *fakeStateRepository
	broadcaster    *captureBroadcaster
	enqueuer       *fakeEnqueuer
}

func newAwardFixture(t *testing.T) *awardFixture {
	t.Helper()
	users := memory.NewUserRepository()
	requests := memory.NewRequestRepository()
	records := memory.NewRecordRepository()
	state := newFakeStateRepository()
	broadcaster := &captureBroadcaster{}
	enqueuer := &fakeEnqueuer{}

	requestService := service.NewRequestService(requests, users, state, broadcaster)
	awardService := service.NewAwardService(records, users, state, requestService, broadcaster, enqueuer)
	return &awardFixture{
		awardService:   awardService,
		requestService: requestService,
		users:          users,
		records:        records,
		state:          state,
		broadcaster:    broadcaster,
		enqueuer:       enqueuer,
	}
}

func TestAwardService_Award_Success(t *testing.T) {
	f := newAwardFixture(t)
	ctx := context.Background()
	student := seedUser(t, f.users, "alice", domain.RoleStudent)
	instructor := seedUser(t, f.users, "prof", domain.RoleInstructor)

	record, err := f.awardService.Award(ctx, instructor.ID, service.AwardInput{
		StudentID: student.ID,
		Points:    3,
		Feedback:  "great answer",
	})

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotZero(t, record.ID)
	assert.Equal(t, uint(3), record.Points)
	assert.Equal(t, "great answer", record.Feedback)

	// 广播 participationRecordCreated，载荷携带记录和学生公开信息
	events := f.broadcaster.Events()
	require.Equal(t, 1, f.broadcaster.CountByType(domain.EventRecordCreated))
	var payload domain.RecordCreatedPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, record.ID, payload.Record.ID)
	assert.Equal(t, "alice", payload.Student.Username)

	// 审计任务入队
	assert.Equal(t, 1, f.enqueuer.TypeCount(tasks.TypeAwardAudit))
}

func TestAwardService_Award_ZeroPoints(t *testing.T) {
	// 0 分是合法的"已确认、不加分"
	f := newAwardFixture(t)
	ctx := context.Background()
	student := seedUser(t, f.users, "bob", domain.RoleStudent)
	instructor := seedUser(t, f.users, "prof", domain.RoleInstructor)

	record, err := f.awardService.Award(ctx, instructor.ID, service.AwardInput{StudentID: student.ID, Points: 0})

	require.NoError(t, err)
	assert.Equal(t, uint(0), record.Points)
}

func TestAwardService_Award_ClosesLinkedRequest(t *testing.T) {
	f := newAwardFixture(t)
	ctx := context.Background()
	student := seedUser(t, f.users, "carol", domain.RoleStudent)
	instructor := seedUser(t, f.users, "prof", domain.RoleInstructor)

	request, err := f.requestService.Open(ctx, student.ID, "pick me")
	require.NoError(t, err)

	_, err = f.awardService.Award(ctx, instructor.ID, service.AwardInput{
		StudentID:       student.ID,
		Points:          2,
		LinkedRequestID: request.ID,
	})
	require.NoError(t, err)

	// 关联请求被关闭且广播了 deactivated 事件
	open, err := f.requestService.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, 1, f.broadcaster.CountByType(domain.EventRequestClosed))
	assert.Equal(t, 1, f.broadcaster.CountByType(domain.EventRecordCreated))
}

func TestAwardService_Award_LinkedRequestAlreadyClosed(t *testing.T) {
	// 请求已被并发撤回时加分依然成功，关闭是 best-effort
	f := newAwardFixture(t)
	ctx := context.Background()
	student := seedUser(t, f.users, "dave", domain.RoleStudent)
	instructor := seedUser(t, f.users, "prof", domain.RoleInstructor)

	request, err := f.requestService.Open(ctx, student.ID, "")
	require.NoError(t, err)
	_, err = f.requestService.Close(ctx, request.ID, student.ID, domain.RoleStudent)
	require.NoError(t, err)

	record, err := f.awardService.Award(ctx, instructor.ID, service.AwardInput{
		StudentID:       student.ID,
		Points:          1,
		LinkedRequestID: request.ID,
	})

	require.NoError(t, err, "关联请求已关闭不应让加分失败")
	assert.NotZero(t, record.ID)
	// 幂等关闭不产生第二次 deactivated 广播
	assert.Equal(t, 1, f.broadcaster.CountByType(domain.EventRequestClosed))
}

func TestAwardService_Award_DanglingLinkedRequest(t *testing.T) {
	// 关联的请求 ID 不存在: 加分依然成功
	f := newAwardFixture(t)
	ctx := context.Background()
	student := seedUser(t, f.users, "erin", domain.RoleStudent)
	instructor := seedUser(t, f.users, "prof", domain.RoleInstructor)

	record, err := f.awardService.Award(ctx, instructor.ID, service.AwardInput{
		StudentID:       student.ID,
		Points:          5,
		LinkedRequestID: 999,
	})

	require.NoError(t, err)
	assert.NotZero(t, record.ID)
}

func TestAwardService_Award_InvalidStudent(t *testing.T) {
	f := newAwardFixture(t)
	ctx := context.Background()
	instructor := seedUser(t, f.users, "prof", domain.RoleInstructor)

	// 不存在的用户
	_, err := f.awardService.Award(ctx, instructor.ID, service.AwardInput{StudentID: 999, Points: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidStudent))

	// 非 student 角色的用户
	_, err = f.awardService.Award(ctx, instructor.ID, service.AwardInput{StudentID: instructor.ID, Points: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidStudent))

	assert.Empty(t, f.broadcaster.Events())
}

func TestAwardService_Award_RapidDoubleClickAppends(t *testing.T) {
	// 加分创建是追加式的: 快速连击产生两条独立记录，绝不静默去重
	f := newAwardFixture(t)
	ctx := context.Background()
	student := seedUser(t, f.users, "frank", domain.RoleStudent)
	instructor := seedUser(t, f.users, "prof", domain.RoleInstructor)

	input := service.AwardInput{StudentID: student.ID, Points: 1, Feedback: "same"}
	first, err := f.awardService.Award(ctx, instructor.ID, input)
	require.NoError(t, err)
	second, err := f.awardService.Award(ctx, instructor.ID, input)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	total, err := f.awardService.TotalPoints(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestAwardService_TotalPoints_IncludesHidden(t *testing.T) {
	// 总分计入隐藏记录；展示列表过滤隐藏记录。两者使用不同谓词是文档化行为。
	f := newAwardFixture(t)
	ctx := context.Background()
	student := seedUser(t, f.users, "grace", domain.RoleStudent)

	require.NoError(t, f.records.Create(ctx, &domain.ParticipationRecord{StudentID: student.ID, Points: 3}))
	require.NoError(t, f.records.Create(ctx, &domain.ParticipationRecord{StudentID: student.ID, Points: 2, Hidden: true}))

	total, err := f.awardService.TotalPoints(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total, "隐藏记录应计入总分")

	visible, err := f.awardService.List(ctx, student.ID, domain.RoleStudent, false)
	require.NoError(t, err)
	assert.Len(t, visible, 1, "学生视图应过滤隐藏记录")
}

func TestAwardService_TotalPoints_CacheInvalidatedOnAward(t *testing.T) {
	f := newAwardFixture(t)
	ctx := context.Background()
	student := seedUser(t, f.users, "heidi", domain.RoleStudent)
	instructor := seedUser(t, f.users, "prof", domain.RoleInstructor)

	_, err := f.awardService.Award(ctx, instructor.ID, service.AwardInput{StudentID: student.ID, Points: 2})
	require.NoError(t, err)

	total, err := f.awardService.TotalPoints(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	// 第二次加分使缓存失效，总分立即反映新记录
	_, err = f.awardService.Award(ctx, instructor.ID, service.AwardInput{StudentID: student.ID, Points: 3})
	require.NoError(t, err)

	total, err = f.awardService.TotalPoints(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total, "加分后缓存应已失效")
}

func TestAwardService_List_RolePredicates(t *testing.T) {
	f := newAwardFixture(t)
	ctx := context.Background()
	s1 := seedUser(t, f.users, "ivan", domain.RoleStudent)
	s2 := seedUser(t, f.users, "judy", domain.RoleStudent)
	instructor := seedUser(t, f.users, "prof", domain.RoleInstructor)

	require.NoError(t, f.records.Create(ctx, &domain.ParticipationRecord{StudentID: s1.ID, Points: 1}))
	require.NoError(t, f.records.Create(ctx, &domain.ParticipationRecord{StudentID: s2.ID, Points: 1}))
	require.NoError(t, f.records.Create(ctx, &domain.ParticipationRecord{StudentID: s2.ID, Points: 1, Hidden: true}))

	// 学生只看到自己的非隐藏记录
	own, err := f.awardService.List(ctx, s2.ID, domain.RoleStudent, true)
	require.NoError(t, err)
	assert.Len(t, own, 1, "学生即使请求 showHidden 也看不到隐藏记录")

	// 教师默认看到全部非隐藏记录
	all, err := f.awardService.List(ctx, instructor.ID, domain.RoleInstructor, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// 教师可以显式包含隐藏记录
	withHidden, err := f.awardService.List(ctx, instructor.ID, domain.RoleInstructor, true)
	require.NoError(t, err)
	assert.Len(t, withHidden, 3)
}

func TestAwardService_DeleteToday(t *testing.T) {
	f := newAwardFixture(t)
	ctx := context.Background()
	student := seedUser(t, f.users, "kate", domain.RoleStudent)

	// 两条今天的记录，一条昨天的
	require.NoError(t, f.records.Create(ctx, &domain.ParticipationRecord{StudentID: student.ID, Points: 1}))
	require.NoError(t, f.records.Create(ctx, &domain.ParticipationRecord{StudentID: student.ID, Points: 2}))
	require.NoError(t, f.records.Create(ctx, &domain.ParticipationRecord{
		StudentID: student.ID, Points: 4, CreatedAt: time.Now().Add(-25 * time.Hour),
	}))

	count, err := f.awardService.DeleteToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 广播 participationRecordsDeleted，载荷携带删除数量
	events := f.broadcaster.Events()
	require.Equal(t, 1, f.broadcaster.CountByType(domain.EventRecordsDeleted))
	var payload domain.RecordsDeletedPayload
	require.NoError(t, json.Unmarshal(events[len(events)-1].Payload, &payload))
	assert.Equal(t, int64(2), payload.Count)

	// 昨天的记录保留，总分反映删除
	total, err := f.awardService.TotalPoints(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

func TestAwardService_EndToEndScenario(t *testing.T) {
	// 完整场景: 学生举手 → 教师加分并关联请求 → 请求关闭 → 总分更新
	f := newAwardFixture(t)
	ctx := context.Background()
	student := seedUser(t, f.users, "lara", domain.RoleStudent)
	instructor := seedUser(t, f.users, "prof", domain.RoleInstructor)

	request, err := f.requestService.Open(ctx, student.ID, "answer to Q3")
	require.NoError(t, err)

	record, err := f.awardService.Award(ctx, instructor.ID, service.AwardInput{
		StudentID:       student.ID,
		Points:          2,
		Feedback:        "correct",
		LinkedRequestID: request.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	// 请求已关闭
	updated, err := f.requestService.Close(ctx, request.ID, instructor.ID, domain.RoleInstructor)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusClosed, updated.Status)

	// 总分正确
	total, err := f.awardService.TotalPoints(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	// 事件序列: opened, closed, recordCreated 各一次
	assert.Equal(t, 1, f.broadcaster.CountByType(domain.EventRequestOpened))
	assert.Equal(t, 1, f.broadcaster.CountByType(domain.EventRequestClosed))
	assert.Equal(t, 1, f.broadcaster.CountByType(domain.EventRecordCreated))
}
