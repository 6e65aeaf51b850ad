package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kinohall/vodpipe/internal/config"
	"github.com/kinohall/vodpipe/pkg/models"
)

// Cache provides slot locking and progress caching via Redis.
type Cache struct {
	client *redis.Client
}

// New creates a new cache instance
func New(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Slot locks

// AcquireSlotLock takes a short-lived exclusive lock on a slot so two
// processes cannot both stage an upload into it between database checks.
// Returns false when another upload already holds the slot.
func (c *Cache) AcquireSlotLock(ctx context.Context, slotKey string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, "slotlock:"+slotKey, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire slot lock: %w", err)
	}
	return ok, nil
}

// ReleaseSlotLock drops the slot lock.
func (c *Cache) ReleaseSlotLock(ctx context.Context, slotKey string) error {
	if err := c.client.Del(ctx, "slotlock:"+slotKey).Err(); err != nil {
		return fmt.Errorf("failed to release slot lock: %w", err)
	}
	return nil
}

// Progress cache

type progressEntry struct {
	Status   models.AssetStatus `json:"status"`
	Uploaded int                `json:"uploaded"`
	Total    int                `json:"total"`
}

// SetProgress caches an asset's progress counters for collaborators that
// poll frequently.
func (c *Cache) SetProgress(ctx context.Context, assetID string, status models.AssetStatus, uploaded, total int, ttl time.Duration) error {
	data, err := json.Marshal(progressEntry{Status: status, Uploaded: uploaded, Total: total})
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	return c.client.Set(ctx, "progress:"+assetID, data, ttl).Err()
}

// GetProgress reads cached progress. A cache miss returns ok=false.
func (c *Cache) GetProgress(ctx context.Context, assetID string) (status models.AssetStatus, uploaded, total int, ok bool, err error) {
	data, err := c.client.Get(ctx, "progress:"+assetID).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", 0, 0, false, nil
	}
	if err != nil {
		return "", 0, 0, false, fmt.Errorf("failed to get progress: %w", err)
	}

	var entry progressEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", 0, 0, false, fmt.Errorf("failed to unmarshal progress: %w", err)
	}

	return entry.Status, entry.Uploaded, entry.Total, true, nil
}

// DropProgress removes the cached progress of a deleted asset.
func (c *Cache) DropProgress(ctx context.Context, assetID string) error {
	return c.client.Del(ctx, "progress:"+assetID).Err()
}
