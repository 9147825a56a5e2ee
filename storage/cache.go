package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"hackboard/domain"
)

type backend interface {
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	FetchMembers(ctx context.Context, projectID string) ([]domain.Member, error)
	PatchTask(ctx context.Context, projectID, taskID string, patch domain.TaskPatch) error
}

// Cache wraps a backend with Redis-backed caching for read operations.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client or zero TTL disables caching.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.load(ctx, tasksCacheKey(projectID), &tasks) {
		return tasks, nil
	}
	tasks, err := c.base.FetchTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(projectID), tasks)
	return tasks, nil
}

func (c *Cache) FetchMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	var members []domain.Member
	if c.load(ctx, membersCacheKey(projectID), &members) {
		return members, nil
	}
	members, err := c.base.FetchMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, membersCacheKey(projectID), members)
	return members, nil
}

// PatchTask forwards the update and drops the cached task list on success.
func (c *Cache) PatchTask(ctx context.Context, projectID, taskID string, patch domain.TaskPatch) error {
	if err := c.base.PatchTask(ctx, projectID, taskID, patch); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(projectID))
	return nil
}

// Invalidate drops every cached entry of a project so the next read goes to
// the backend.
func (c *Cache) Invalidate(ctx context.Context, projectID string) {
	c.evict(ctx, tasksCacheKey(projectID), membersCacheKey(projectID))
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func tasksCacheKey(projectID string) string {
	return "tasks:" + projectID
}

func membersCacheKey(projectID string) string {
	return "members:" + projectID
}
