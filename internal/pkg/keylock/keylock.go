// Package keylock serializes side-effecting work per key. A holder's completion channel
// is closed on Release, on error paths that call Release, or when the TTL fallback fires,
// so a hung holder can never block its key forever.
package keylock

import (
	"context"
	"sync"
	"time"
)

const defaultTTL = 30 * time.Second

type lock struct {
	done      chan struct{}
	createdAt time.Time
	once      sync.Once
	timer     *time.Timer
}

type Table struct {
	mu    sync.Mutex
	locks map[string]*lock
	ttl   time.Duration
	now   func() time.Time
}

type Handle struct {
	table *Table
	key   string
	lock  *lock
}

func New(ttl time.Duration) *Table {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Table{
		locks: make(map[string]*lock),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Acquire blocks until no live lock exists for key, then takes it.
func (t *Table) Acquire(ctx context.Context, key string) (*Handle, error) {
	for {
		t.mu.Lock()
		current, held := t.locks[key]
		if !held {
			l := &lock{
				done:      make(chan struct{}),
				createdAt: t.now(),
			}
			t.locks[key] = l
			h := &Handle{table: t, key: key, lock: l}
			l.timer = time.AfterFunc(t.ttl, h.Release)
			t.mu.Unlock()
			return h, nil
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-current.done:
		}
	}
}

// Held reports whether key currently has a live lock.
func (t *Table) Held(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.locks[key]
	return ok
}

// Release is idempotent and safe to call from any goroutine.
func (h *Handle) Release() {
	if h == nil || h.lock == nil {
		return
	}
	h.lock.once.Do(func() {
		h.table.mu.Lock()
		if h.lock.timer != nil {
			h.lock.timer.Stop()
		}
		if h.table.locks[h.key] == h.lock {
			delete(h.table.locks, h.key)
		}
		h.table.mu.Unlock()
		close(h.lock.done)
	})
}

func (h *Handle) Key() string {
	if h == nil {
		return ""
	}
	return h.key
}
