package classify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/pkg/ttlmap"
)

const defaultCacheTTL = 10 * time.Minute

// RemoteCache is an optional shared tier. Its failures only cost a classifier call.
type RemoteCache interface {
	GetCategory(ctx context.Context, key string) (string, bool, error)
	SetCategory(ctx context.Context, key, category string) error
}

type Cache struct {
	local  *ttlmap.Map[string, model.ClassificationResult]
	remote RemoteCache
	logger *zap.Logger
}

func NewCache(ttl time.Duration, remote RemoteCache, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		local:  ttlmap.New[string, model.ClassificationResult](ttl),
		remote: remote,
		logger: logger,
	}
}

func (c *Cache) Get(ctx context.Context, key string) (model.ClassificationResult, bool) {
	if result, ok := c.local.Get(key); ok {
		return result, true
	}
	if c.remote == nil {
		return model.ClassificationResult{}, false
	}

	raw, ok, err := c.remote.GetCategory(ctx, key)
	if err != nil {
		c.logger.Debug("remote classification cache read failed", zap.Error(err))
		return model.ClassificationResult{}, false
	}
	if !ok {
		return model.ClassificationResult{}, false
	}
	category := enums.Category(raw)
	if !category.Valid() {
		return model.ClassificationResult{}, false
	}
	result := model.NewClassificationResult(category)
	c.local.Set(key, result)
	return result, true
}

func (c *Cache) Set(ctx context.Context, key string, result model.ClassificationResult) {
	c.local.Set(key, result)
	if c.remote == nil {
		return
	}
	if err := c.remote.SetCategory(ctx, key, string(result.Category)); err != nil {
		c.logger.Debug("remote classification cache write failed", zap.Error(err))
	}
}

// Purge drops expired local entries.
func (c *Cache) Purge() int {
	return c.local.Purge()
}

func (c *Cache) Len() int {
	return c.local.Len()
}
