package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/abhaychandra123/ent615Parti/internal/domain"
	"github.com/abhaychandra123/ent615Parti/internal/repository"
)

// captureBroadcaster 记录所有广播的事件，供断言使用
type captureBroadcaster struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *captureBroadcaster) Broadcast(event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBroadcaster) Events() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *captureBroadcaster) CountByType(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, e := range b.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// fakeStateRepository 是 StateRepository 的进程内实现，
// 语义与 Redis 版本一致：SETNX 风格的锁和可失效的总分缓存。
type fakeStateRepository struct {
	mu     sync.Mutex
	locks  map[uint]bool
	totals map[uint]int64
}

func newFakeStateRepository() *fakeStateRepository {
	return &fakeStateRepository{
		locks:  make(map[uint]bool),
		totals: make(map[uint]int64),
	}
}

func (s *fakeStateRepository) AcquireStudentLock(_ context.Context, studentID uint, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[studentID] {
		return false, nil
	}
	s.locks[studentID] = true
	return true, nil
}

func (s *fakeStateRepository) ReleaseStudentLock(_ context.Context, studentID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, studentID)
	return nil
}

func (s *fakeStateRepository) GetTotalPointsCache(_ context.Context, studentID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, ok := s.totals[studentID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return total, nil
}

func (s *fakeStateRepository) SetTotalPointsCache(_ context.Context, studentID uint, total int64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[studentID] = total
	return nil
}

func (s *fakeStateRepository) InvalidateTotalPoints(_ context.Context, studentID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.totals, studentID)
	return nil
}

func (s *fakeStateRepository) InvalidateAllTotals(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = make(map[uint]int64)
	return nil
}

func (s *fakeStateRepository) CheckRateLimit(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return false, nil
}
