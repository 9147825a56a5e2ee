package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const generationKeyPrefix = "generated"

// GenerationGuard records which projects already had their one-time
// generation triggered. The flag lives in Redis so it survives restarts and
// is shared by every instance.
type GenerationGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGenerationGuard creates a guard. A zero ttl keeps flags forever.
func NewGenerationGuard(client *redis.Client, ttl time.Duration) *GenerationGuard {
	if ttl < 0 {
		ttl = 0
	}
	return &GenerationGuard{client: client, ttl: ttl}
}

func (g *GenerationGuard) key(projectID string) string {
	return generationKeyPrefix + ":" + projectID
}

// Claim marks the project as generated. It returns true only for the first
// caller.
func (g *GenerationGuard) Claim(ctx context.Context, projectID string) (bool, error) {
	return g.client.SetNX(ctx, g.key(projectID), time.Now().UTC().Unix(), g.ttl).Result()
}

// Release clears the flag, used when the generation request failed so a
// later call may retry it.
func (g *GenerationGuard) Release(ctx context.Context, projectID string) error {
	return g.client.Del(ctx, g.key(projectID)).Err()
}

// Claimed reports whether generation was already triggered for the project.
func (g *GenerationGuard) Claimed(ctx context.Context, projectID string) (bool, error) {
	n, err := g.client.Exists(ctx, g.key(projectID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
