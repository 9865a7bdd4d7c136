package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apodmail/apodmail/internal/model"
)

const (
	// statsKey is the Redis key for the cached stats payload.
	statsKey = "stats:" + model.StatsSnapshotName

	// DefaultStatsTTL is the TTL for the cached stats payload. The durable
	// snapshot lives in the record store; this copy is disposable.
	DefaultStatsTTL = 24 * time.Hour
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// GetStats retrieves the cached stats payload.
// Returns ErrCacheMiss if not present.
func (c *Cache) GetStats(ctx context.Context) (*model.StatsPayload, error) {
	data, err := c.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var payload model.StatsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached stats: %w", err)
	}

	return &payload, nil
}

// SetStats stores the stats payload in cache.
func (c *Cache) SetStats(ctx context.Context, payload *model.StatsPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := c.client.Set(ctx, statsKey, data, DefaultStatsTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// InvalidateStats drops the cached stats payload.
func (c *Cache) InvalidateStats(ctx context.Context) error {
	if err := c.client.Del(ctx, statsKey).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
