package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) Sweep(context.Context) (int, error) {
	f.calls.Add(1)
	return 1, f.err
}

type fakePurger struct {
	calls atomic.Int32
}

func (f *fakePurger) Purge() int {
	f.calls.Add(1)
	return 2
}

func TestRunPurgesAndSweeps(t *testing.T) {
	sweeper := &fakeSweeper{}
	purger := &fakePurger{}

	job := New(sweeper, nil)
	job.AttachPurger("cache", purger)
	job.AttachPurger("nil", nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run sweep job: %v", err)
	}
	if sweeper.calls.Load() != 1 || purger.calls.Load() != 1 {
		t.Fatalf("unexpected calls: sweep=%d purge=%d", sweeper.calls.Load(), purger.calls.Load())
	}
}

func TestRunPurgesEvenWhenSweepFails(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	purger := &fakePurger{}

	job := New(sweeper, nil)
	job.AttachPurger("cache", purger)

	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected sweep error")
	}
	if purger.calls.Load() != 1 {
		t.Fatalf("expected purge despite sweep failure")
	}
}

func TestLoopRunsUntilCancelled(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("transient")}
	job := New(sweeper, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Loop(ctx, 5*time.Millisecond) }()

	deadline := time.Now().Add(time.Second)
	for sweeper.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("loop did not keep running after failures, calls=%d", sweeper.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected loop error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop after cancel")
	}
}
