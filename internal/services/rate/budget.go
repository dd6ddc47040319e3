package rate

import (
	"context"
	"fmt"
	"time"
)

const budgetWindow = time.Minute

// Budget is a per-window call allowance. Take increments first and compares after,
// so concurrent callers can never both take the last unit.
type Budget struct {
	store WindowStore
	key   string
	limit int
}

func NewBudget(store WindowStore, key string, perMinute int) *Budget {
	if perMinute < 0 {
		perMinute = 0
	}
	return &Budget{
		store: store,
		key:   key,
		limit: perMinute,
	}
}

func (b *Budget) Take(ctx context.Context) (bool, error) {
	if b.store == nil {
		return false, fmt.Errorf("budget store is nil")
	}
	if b.limit == 0 {
		return false, nil
	}

	count, _, err := b.store.IncrementWindow(ctx, b.key, budgetWindow)
	if err != nil {
		return false, err
	}
	return count <= int64(b.limit), nil
}

func (b *Budget) Remaining(ctx context.Context) (int, time.Duration, error) {
	if b.store == nil {
		return 0, 0, fmt.Errorf("budget store is nil")
	}

	count, ttl, err := b.store.WindowState(ctx, b.key)
	if err != nil {
		return 0, 0, err
	}
	remaining := b.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, ttl, nil
}

func (b *Budget) Limit() int {
	return b.limit
}
