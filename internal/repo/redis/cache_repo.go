package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const classificationPrefix = "classify:"

// CacheRepo is the shared second tier of the classification cache.
type CacheRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewCacheRepo(client *goredis.Client, ttl time.Duration) *CacheRepo {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CacheRepo{client: client, ttl: ttl}
}

func (r *CacheRepo) GetCategory(ctx context.Context, key string) (string, bool, error) {
	if r.client == nil {
		return "", false, fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(key) == "" {
		return "", false, nil
	}

	value, err := r.client.Get(ctx, classificationPrefix+key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cached classification: %w", err)
	}
	return value, true, nil
}

func (r *CacheRepo) SetCategory(ctx context.Context, key, category string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(key) == "" {
		return nil
	}

	if err := r.client.Set(ctx, classificationPrefix+key, category, r.ttl).Err(); err != nil {
		return fmt.Errorf("set cached classification: %w", err)
	}
	return nil
}
