package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/abhaychandra123/ent615Parti/internal/repository"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "pt:" // 默认前缀 "pt:" (participation tracker)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) studentLockKey(studentID uint) string {
	return fmt.Sprintf("%sstudent:%d:raise_lock", r.keyPrefix, studentID)
}

func (r *RedisStateRepository) totalPointsKey(studentID uint) string {
	return fmt.Sprintf("%sstudent:%d:total_points", r.keyPrefix, studentID)
}

func (r *RedisStateRepository) totalPointsPattern() string {
	return r.keyPrefix + "student:*:total_points"
}

// --- StateRepository Interface Implementation ---

// AcquireStudentLock 使用 SET NX 获取学生的举手锁。
// 锁只覆盖"重复检查 + 插入"这一小段临界区，TTL 防止持有者崩溃后死锁。
func (r *RedisStateRepository) AcquireStudentLock(ctx context.Context, studentID uint, ttl time.Duration) (bool, error) {
	key := r.studentLockKey(studentID)
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to acquire raise lock for student %d: %w", studentID, err)
	}
	return ok, nil
}

// ReleaseStudentLock 释放学生的举手锁
func (r *RedisStateRepository) ReleaseStudentLock(ctx context.Context, studentID uint) error {
	key := r.studentLockKey(studentID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to release raise lock for student %d: %w", studentID, err)
	}
	return nil
}

// GetTotalPointsCache 读取学生总分缓存，未命中返回 repository.ErrNotFound
func (r *RedisStateRepository) GetTotalPointsCache(ctx context.Context, studentID uint) (int64, error) {
	key := r.totalPointsKey(studentID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("redis: failed to get total points cache for student %d: %w", studentID, err)
	}
	total, parseErr := strconv.ParseInt(val, 10, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("redis: failed to parse cached total '%s' for student %d: %w", val, studentID, parseErr)
	}
	return total, nil
}

// SetTotalPointsCache 写入学生总分缓存
func (r *RedisStateRepository) SetTotalPointsCache(ctx context.Context, studentID uint, total int64, ttl time.Duration) error {
	key := r.totalPointsKey(studentID)
	if err := r.client.Set(ctx, key, total, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set total points cache for student %d: %w", studentID, err)
	}
	return nil
}

// InvalidateTotalPoints 使某学生的总分缓存失效
func (r *RedisStateRepository) InvalidateTotalPoints(ctx context.Context, studentID uint) error {
	key := r.totalPointsKey(studentID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to invalidate total points cache for student %d: %w", studentID, err)
	}
	return nil
}

// InvalidateAllTotals 使全部总分缓存失效。
// 使用 SCAN 而不是 KEYS，避免在大 keyspace 上阻塞 Redis。
func (r *RedisStateRepository) InvalidateAllTotals(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.totalPointsPattern(), 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis: failed to delete cached total %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan failed while invalidating totals: %w", err)
	}
	return nil
}

// CheckRateLimit 检查并递增给定 key 的请求计数。
// 使用 Pipeline 执行 INCR 和 EXPIRE，减少竞争条件风险。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.keyPrefix + "ratelimit:" + key

	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit pipeline failed for %s: %w", key, err)
	}

	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get INCR result for %s: %w", key, err)
	}
	return count > int64(limit), nil
}
