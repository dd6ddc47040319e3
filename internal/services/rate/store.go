package rate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WindowStore counts events in fixed windows that start on the first increment.
type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	WindowState(ctx context.Context, key string) (int64, time.Duration, error)
}

type memoryWindow struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is the in-process WindowStore used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]memoryWindow),
		now:     time.Now,
	}
}

func (s *MemoryStore) IncrementWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if key == "" || window <= 0 {
		return 0, 0, fmt.Errorf("invalid rate window payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = memoryWindow{expiresAt: now.Add(window)}
	}
	w.count++
	s.windows[key] = w

	return w.count, w.expiresAt.Sub(now), nil
}

func (s *MemoryStore) WindowState(_ context.Context, key string) (int64, time.Duration, error) {
	if key == "" {
		return 0, 0, fmt.Errorf("rate key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		delete(s.windows, key)
		return 0, 0, nil
	}
	return w.count, w.expiresAt.Sub(now), nil
}

// Purge drops elapsed windows.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.expiresAt) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}
