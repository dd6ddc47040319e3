package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireSerializesSameKey(t *testing.T) {
	table := New(time.Minute)
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := table.Acquire(ctx, "c:1:u:2")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer h.Release()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected mutual exclusion, max concurrent holders=%d", maxActive)
	}
	if table.Held("c:1:u:2") {
		t.Fatalf("lock must be released after all holders finish")
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	table := New(time.Minute)
	ctx := context.Background()

	first, err := table.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer first.Release()

	acquireCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	second, err := table.Acquire(acquireCtx, "b")
	if err != nil {
		t.Fatalf("acquire b must not wait on a: %v", err)
	}
	second.Release()
}

func TestTTLFallbackReleasesHungHolder(t *testing.T) {
	table := New(20 * time.Millisecond)
	ctx := context.Background()

	if _, err := table.Acquire(ctx, "hung"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	h, err := table.Acquire(waitCtx, "hung")
	if err != nil {
		t.Fatalf("expected ttl fallback to free the key: %v", err)
	}
	h.Release()
}

func TestAcquireHonorsContextWhileWaiting(t *testing.T) {
	table := New(time.Minute)
	ctx := context.Background()

	h, err := table.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := table.Acquire(waitCtx, "k"); err == nil {
		t.Fatalf("expected context error while key is held")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	table := New(time.Minute)
	h, err := table.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h.Release()
	h.Release()

	next, err := table.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	h.Release()
	if !table.Held("k") {
		t.Fatalf("stale handle release must not drop the new holder's lock")
	}
	next.Release()
}
