// Package ttlmap is a mutex-guarded map whose entries expire after a fixed TTL.
// Expired entries are treated as absent and removed lazily on access; Purge bounds
// memory for keys that are never read again.
package ttlmap

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

type Map[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[K]entry[V]
	now     func() time.Time
}

func New[K comparable, V any](ttl time.Duration) *Map[K, V] {
	return &Map[K, V]{
		ttl:     ttl,
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *Map[K, V]) WithClock(now func() time.Time) *Map[K, V] {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if m.expired(e, m.now()) {
		delete(m.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (m *Map[K, V]) Set(key K, value V) {
	m.mu.Lock()
	m.entries[key] = entry[V]{value: value, storedAt: m.now()}
	m.mu.Unlock()
}

// SetIfAbsent stores value only when key has no live entry and reports whether it did.
func (m *Map[K, V]) SetIfAbsent(key K, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && !m.expired(e, now) {
		return false
	}
	m.entries[key] = entry[V]{value: value, storedAt: now}
	return true
}

// Update applies fn to the live value (or the zero value) and stores the result atomically.
func (m *Map[K, V]) Update(key K, fn func(current V, exists bool) V) V {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if ok && m.expired(e, now) {
		ok = false
	}
	var current V
	storedAt := now
	if ok {
		current = e.value
		storedAt = e.storedAt
	}
	next := fn(current, ok)
	m.entries[key] = entry[V]{value: next, storedAt: storedAt}
	return next
}

func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Purge drops every expired entry and returns how many were removed.
func (m *Map[K, V]) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if m.expired(e, now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

func (m *Map[K, V]) expired(e entry[V], now time.Time) bool {
	if m.ttl <= 0 {
		return false
	}
	return now.Sub(e.storedAt) >= m.ttl
}
