// Package memory 提供 Ledger Store 仓库接口的内存实现。
// 用于测试；生产环境使用 GORM 实现。两种变体在构造时选择，调用方无感知。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/repository"
)

// UserRepository 是 UserRepository 接口的内存实现
type UserRepository struct {
	mu     sync.RWMutex
	users  map[uint]*domain.User
	nextID uint
}

// NewUserRepository 创建内存用户仓库
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[uint]*domain.User), nextID: 1}
}

func (r *UserRepository) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *UserRepository) FindByID(_ context.Context, id uint) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *UserRepository) Save(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// 模拟唯一约束
	for _, u := range r.users {
		if u.Username == user.Username && u.ID != user.ID {
			return repository.ErrDuplicateEntry
		}
	}
	if user.ID == 0 {
		user.ID = r.nextID
		r.nextID++
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = time.Now()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

// RequestRepository 是 RequestRepository 接口的内存实现
type RequestRepository struct {
	mu       sync.RWMutex
	requests map[uint]*domain.ParticipationRequest
	nextID   uint
}

// NewRequestRepository 创建内存请求仓库
func NewRequestRepository() *RequestRepository {
	return &RequestRepository{requests: make(map[uint]*domain.ParticipationRequest), nextID: 1}
}

func (r *RequestRepository) Create(_ context.Context, request *domain.ParticipationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	request.ID = r.nextID
	r.nextID++
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now()
	}
	request.UpdatedAt = time.Now()
	copied := *request
	r.requests[request.ID] = &copied
	return nil
}

func (r *RequestRepository) FindByID(_ context.Context, id uint) (*domain.ParticipationRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	copied := *req
	return &copied, nil
}

func (r *RequestRepository) FindOpenByStudent(_ context.Context, studentID uint) (*domain.ParticipationRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, req := range r.requests {
		if req.StudentID == studentID && req.Status == domain.RequestStatusOpen {
			copied := *req
			return &copied, nil
		}
	}
	return nil, repository.ErrRequestNotFound
}

func (r *RequestRepository) ListOpen(_ context.Context) ([]domain.ParticipationRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ParticipationRequest
	for _, req := range r.requests {
		if req.Status == domain.RequestStatusOpen {
			out = append(out, *req)
		}
	}
	sortRequestsByCreatedAt(out)
	return out, nil
}

func (r *RequestRepository) ListOpenBefore(_ context.Context, cutoff time.Time) ([]domain.ParticipationRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ParticipationRequest
	for _, req := range r.requests {
		if req.Status == domain.RequestStatusOpen && req.CreatedAt.Before(cutoff) {
			out = append(out, *req)
		}
	}
	sortRequestsByCreatedAt(out)
	return out, nil
}

func (r *RequestRepository) Save(_ context.Context, request *domain.ParticipationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[request.ID]; !ok {
		return repository.ErrRequestNotFound
	}
	request.UpdatedAt = time.Now()
	copied := *request
	r.requests[request.ID] = &copied
	return nil
}

func sortRequestsByCreatedAt(requests []domain.ParticipationRequest) {
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			// 相同时间戳时按 ID 保证确定性顺序
			return requests[i].ID < requests[j].ID
		}
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
}

// RecordRepository 是 RecordRepository 接口的内存实现
type RecordRepository struct {
	mu      sync.RWMutex
	records map[uint]*domain.ParticipationRecord
	nextID  uint
}

// NewRecordRepository 创建内存记录仓库
func NewRecordRepository() *RecordRepository {
	return &RecordRepository{records: make(map[uint]*domain.ParticipationRecord), nextID: 1}
}

func (r *RecordRepository) Create(_ context.Context, record *domain.ParticipationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = r.nextID
	r.nextID++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	copied := *record
	r.records[record.ID] = &copied
	return nil
}

func (r *RecordRepository) ListByStudent(_ context.Context, studentID uint, includeHidden bool) ([]domain.ParticipationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ParticipationRecord
	for _, rec := range r.records {
		if rec.StudentID != studentID {
			continue
		}
		if rec.Hidden && !includeHidden {
			continue
		}
		out = append(out, *rec)
	}
	sortRecordsByCreatedAt(out)
	return out, nil
}

func (r *RecordRepository) ListAll(_ context.Context, includeHidden bool) ([]domain.ParticipationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ParticipationRecord
	for _, rec := range r.records {
		if rec.Hidden && !includeHidden {
			continue
		}
		out = append(out, *rec)
	}
	sortRecordsByCreatedAt(out)
	return out, nil
}

func (r *RecordRepository) SumPointsByStudent(_ context.Context, studentID uint) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, rec := range r.records {
		if rec.StudentID == studentID {
			total += int64(rec.Points)
		}
	}
	return total, nil
}

func (r *RecordRepository) DeleteByDateRange(_ context.Context, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for id, rec := range r.records {
		if !rec.CreatedAt.Before(from) && rec.CreatedAt.Before(to) {
			delete(r.records, id)
			count++
		}
	}
	return count, nil
}

func sortRecordsByCreatedAt(records []domain.ParticipationRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
