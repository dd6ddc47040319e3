package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultInterval = 10 * time.Minute

type QuarantineSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Purger drops expired entries from an in-process cache.
type Purger interface {
	Purge() int
}

type namedPurger struct {
	name   string
	purger Purger
}

// Job releases due quarantines and evicts expired in-process cache entries.
type Job struct {
	quarantine QuarantineSweeper
	purgers    []namedPurger
	logger     *zap.Logger
}

func New(quarantine QuarantineSweeper, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		quarantine: quarantine,
		logger:     logger,
	}
}

func (j *Job) AttachPurger(name string, p Purger) {
	if p == nil {
		return
	}
	j.purgers = append(j.purgers, namedPurger{name: name, purger: p})
}

// Run performs one pass. Cache purges always run, even when the quarantine sweep fails.
func (j *Job) Run(ctx context.Context) error {
	for _, p := range j.purgers {
		if n := p.purger.Purge(); n > 0 {
			j.logger.Debug("cache purged", zap.String("cache", p.name), zap.Int("removed", n))
		}
	}

	if j.quarantine == nil {
		return nil
	}
	released, err := j.quarantine.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep quarantine: %w", err)
	}
	if released > 0 {
		j.logger.Info("quarantine sweep completed", zap.Int("released", released))
	}
	return nil
}

// Loop runs the job immediately and then on every tick until ctx is done. Failed passes
// are logged and retried on the next tick.
func (j *Job) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultInterval
	}

	j.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("sweep job failed", zap.Error(err))
	}
}
