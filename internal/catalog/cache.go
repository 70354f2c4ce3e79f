package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const menuKeyPrefix = "menu:"

// Lister is the uncached menu source.
type Lister interface {
	List(ctx context.Context, category string) ([]Item, error)
}

// RedisClient is the subset of the go-redis client used by the cache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedMenu serves menu listings through redis. Stock checks never go
// through it; checkout always reads the table.
type CachedMenu struct {
	primary Lister
	rdb     RedisClient
	ttl     time.Duration
	logger  *slog.Logger
}

func NewCachedMenu(primary Lister, rdb RedisClient, ttl time.Duration, logger *slog.Logger) *CachedMenu {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedMenu{primary: primary, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedMenu) List(ctx context.Context, category string) ([]Item, error) {
	key := menuKeyPrefix + category

	cached, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var items []Item
		if err := json.Unmarshal(cached, &items); err == nil {
			return items, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("menu cache read failed", "key", key, "error", err)
	}

	items, err := c.primary.List(ctx, category)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(items)
	if err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("menu cache write failed", "key", key, "error", err)
		}
	}
	return items, nil
}

// Invalidate drops the full listing and the given categories.
func (c *CachedMenu) Invalidate(ctx context.Context, categories ...string) {
	keys := []string{menuKeyPrefix}
	for _, cat := range categories {
		if cat != "" {
			keys = append(keys, menuKeyPrefix+cat)
		}
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("menu cache invalidate failed", "error", err)
	}
}
