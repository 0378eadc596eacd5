package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/boardroom/internal/model"
)

const snapshotKeyPrefix = "boardroom:discussion:"

type redisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotCache stores snapshots as JSON under
// boardroom:discussion:<id>, expiring ttl after the last write.
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) SnapshotCache {
	return &redisSnapshotCache{client: client, ttl: ttl}
}

func (c *redisSnapshotCache) Publish(ctx context.Context, d *model.Discussion) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKeyPrefix+d.ID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching snapshot: %w", err)
	}
	return nil
}

func (c *redisSnapshotCache) Get(ctx context.Context, discussionID string) (*model.Discussion, error) {
	raw, err := c.client.Get(ctx, snapshotKeyPrefix+discussionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading cached snapshot: %w", err)
	}

	var d model.Discussion
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decoding cached snapshot: %w", err)
	}
	if d.Events == nil {
		d.Events = []model.AgentEvent{}
	}
	return &d, nil
}
