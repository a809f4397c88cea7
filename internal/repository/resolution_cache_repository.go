// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ResolutionCacheRepository 定义了有效责任人解析结果的缓存操作。
// 未命中时 Get 返回 (nil, nil)；任何后端故障都返回 ErrStoreUnavailable。
type ResolutionCacheRepository interface {
	Get(ctx context.Context, companyID, positionID string) (*model.EffectiveAssignment, error)
	Set(ctx context.Context, entry *model.EffectiveAssignment, ttl time.Duration) error
	Invalidate(ctx context.Context, companyID string, positionIDs ...string) error
}

type redisResolutionCacheRepository struct {
	redisClient *redis.Client
}

// NewResolutionCacheRepository 创建一个基于 Redis 的解析缓存。
func NewResolutionCacheRepository(redisClient *redis.Client) ResolutionCacheRepository {
	return &redisResolutionCacheRepository{redisClient: redisClient}
}

func resolutionKey(companyID, positionID string) string {
	return fmt.Sprintf("resolution:%s:%s", companyID, positionID)
}

// Get 从 Redis 读取缓存的解析结果。
func (r *redisResolutionCacheRepository) Get(ctx context.Context, companyID, positionID string) (*model.EffectiveAssignment, error) {
	jsonData, err := r.redisClient.Get(ctx, resolutionKey(companyID, positionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, orgerr.Unavailable(fmt.Errorf("failed to get resolution: %w", err))
	}
	var entry model.EffectiveAssignment
	if err := json.Unmarshal(jsonData, &entry); err != nil {
		// 无法解析的条目按未命中处理，随后会被新结果覆盖
		return nil, nil
	}
	return &entry, nil
}

// Set 写入解析结果并设置过期时间。ttl 不大于 0 时不写入。
func (r *redisResolutionCacheRepository) Set(ctx context.Context, entry *model.EffectiveAssignment, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution: %w", err)
	}
	if err := r.redisClient.Set(ctx, resolutionKey(entry.CompanyID, entry.PositionID), jsonData, ttl).Err(); err != nil {
		return orgerr.Unavailable(fmt.Errorf("failed to set resolution: %w", err))
	}
	return nil
}

// Invalidate 删除指定岗位的缓存条目。
func (r *redisResolutionCacheRepository) Invalidate(ctx context.Context, companyID string, positionIDs ...string) error {
	if len(positionIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(positionIDs))
	for _, id := range positionIDs {
		keys = append(keys, resolutionKey(companyID, id))
	}
	if err := r.redisClient.Del(ctx, keys...).Err(); err != nil {
		return orgerr.Unavailable(fmt.Errorf("failed to invalidate resolution: %w", err))
	}
	return nil
}

// memoryResolutionCacheRepository 是进程内的解析缓存，用于测试和单实例部署。
type memoryResolutionCacheRepository struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	value     model.EffectiveAssignment
	expiresAt time.Time
}

// NewMemoryResolutionCacheRepository 创建进程内缓存。now 为空时使用 time.Now。
func NewMemoryResolutionCacheRepository(now func() time.Time) ResolutionCacheRepository {
	if now == nil {
		now = time.Now
	}
	return &memoryResolutionCacheRepository{now: now, entries: make(map[string]memoryCacheEntry)}
}

func (r *memoryResolutionCacheRepository) Get(_ context.Context, companyID, positionID string) (*model.EffectiveAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := resolutionKey(companyID, positionID)
	e, ok := r.entries[key]
	if !ok {
		return nil, nil
	}
	if !r.now().Before(e.expiresAt) {
		delete(r.entries, key)
		return nil, nil
	}
	v := e.value
	return &v, nil
}

func (r *memoryResolutionCacheRepository) Set(_ context.Context, entry *model.EffectiveAssignment, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[resolutionKey(entry.CompanyID, entry.PositionID)] = memoryCacheEntry{value: *entry, expiresAt: r.now().Add(ttl)}
	return nil
}

func (r *memoryResolutionCacheRepository) Invalidate(_ context.Context, companyID string, positionIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range positionIDs {
		delete(r.entries, resolutionKey(companyID, id))
	}
	return nil
}
