package classify

import (
	"container/list"
	"context"
	"sync"

	"go.uber.org/zap"

	ratesvc "github.com/ivankudzin/tgapp/moderator/internal/services/rate"
)

const defaultMaxConcurrency = 4

// Limiter owns the shared call budget and the in-flight counter. Callers over the
// concurrency limit wait in FIFO order for a released slot; budget is consumed on admission.
type Limiter struct {
	budget      *ratesvc.Budget
	maxInFlight int
	logger      *zap.Logger
	onChange    func(inFlight int)

	mu       sync.Mutex
	inFlight int
	queue    *list.List
}

type waiter struct {
	ready   chan struct{}
	granted bool
}

func NewLimiter(budget *ratesvc.Budget, maxInFlight int, logger *zap.Logger) *Limiter {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		budget:      budget,
		maxInFlight: maxInFlight,
		logger:      logger,
		queue:       list.New(),
	}
}

// OnChange registers a hook called with the in-flight count after every change.
func (l *Limiter) OnChange(fn func(inFlight int)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// TryAcquire waits in FIFO order for an in-flight slot and then takes one budget unit,
// so a caller that gives up while queued spends nothing. It returns ok=false when the
// budget is spent or ctx ends first. A budget store error lets the call proceed.
// On ok=true the caller must call release exactly once; extra calls are no-ops.
func (l *Limiter) TryAcquire(ctx context.Context) (func(), bool) {
	if l == nil || l.budget == nil {
		return nil, false
	}
	release, ok := l.admit(ctx)
	if !ok {
		return nil, false
	}
	if ctx.Err() != nil {
		release()
		return nil, false
	}

	allowed, err := l.budget.Take(ctx)
	if err != nil {
		l.logger.Warn("classification budget unavailable, call proceeds", zap.Error(err))
		return release, true
	}
	if !allowed {
		release()
		return nil, false
	}
	return release, true
}

func (l *Limiter) admit(ctx context.Context) (func(), bool) {
	l.mu.Lock()
	if l.inFlight < l.maxInFlight && l.queue.Len() == 0 {
		l.inFlight++
		l.notifyLocked()
		l.mu.Unlock()
		return l.releaseFunc(), true
	}
	w := &waiter{ready: make(chan struct{})}
	elem := l.queue.PushBack(w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		return l.releaseFunc(), true
	case <-ctx.Done():
		l.mu.Lock()
		if !w.granted {
			l.queue.Remove(elem)
			l.mu.Unlock()
			return nil, false
		}
		l.mu.Unlock()
		// The slot was handed over concurrently with cancellation; give it back.
		l.releaseFunc()()
		return nil, false
	}
}

func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

func (l *Limiter) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

func (l *Limiter) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(l.release)
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inFlight--
	for l.inFlight < l.maxInFlight && l.queue.Len() > 0 {
		front := l.queue.Front()
		l.queue.Remove(front)
		w := front.Value.(*waiter)
		w.granted = true
		l.inFlight++
		close(w.ready)
	}
	l.notifyLocked()
}

func (l *Limiter) notifyLocked() {
	if l.onChange != nil {
		l.onChange(l.inFlight)
	}
}
