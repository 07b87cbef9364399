package repository

import (
	"context"
	"time"
)

// StateRepository 定义了跨请求的瞬态协调状态操作，通常由 Redis 实现。
type StateRepository interface {
	// === Per-student open-request lock ===

	// AcquireStudentLock 尝试获取某学生的举手锁，用于把重复检查和插入
	// 串行化为单个逻辑事务。返回 true 表示获取成功。
	// 锁带 TTL，持有者崩溃后自动释放。
	AcquireStudentLock(ctx context.Context, studentID uint, ttl time.Duration) (bool, error)

	// ReleaseStudentLock 释放学生的举手锁。
	ReleaseStudentLock(ctx context.Context, studentID uint) error

	// === Total points cache ===

	// GetTotalPointsCache 尝试从缓存读取学生总分。
	// 缓存未命中时返回 ErrNotFound。
	GetTotalPointsCache(ctx context.Context, studentID uint) (int64, error)

	// SetTotalPointsCache 写入学生总分缓存。
	SetTotalPointsCache(ctx context.Context, studentID uint, total int64, ttl time.Duration) error

	// InvalidateTotalPoints 使某学生的总分缓存失效。
	InvalidateTotalPoints(ctx context.Context, studentID uint) error

	// InvalidateAllTotals 使全部总分缓存失效（批量删除记录后调用）。
	InvalidateAllTotals(ctx context.Context) error

	// === Rate limiting ===

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 如果超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
