package classify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/metrics"
)

// Adjudicator turns a flag into a binding verdict. Anything short of a clear STRIKE
// resolves to no escalation.
type Adjudicator struct {
	completer Completer
	limiter   *Limiter
	metrics   *metrics.Metrics
	logger    *zap.Logger
	timeout   time.Duration
}

func NewAdjudicator(completer Completer, limiter *Limiter, m *metrics.Metrics, logger *zap.Logger, cfg Config) *Adjudicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Adjudicator{
		completer: completer,
		limiter:   limiter,
		metrics:   m,
		logger:    logger,
		timeout:   cfg.CallTimeout,
	}
}

func (a *Adjudicator) Adjudicate(ctx context.Context, text string, category enums.Category) model.Verdict {
	if a.completer == nil {
		a.metrics.Adjudication("unconfigured")
		return model.Verdict{Reason: "adjudication unavailable"}
	}

	release, ok := a.limiter.TryAcquire(ctx)
	if !ok {
		a.metrics.Adjudication("skipped_budget")
		return model.Verdict{Reason: "adjudication budget exhausted"}
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.completer.Complete(callCtx, fmt.Sprintf(adjudicateSystemPrompt, category), text)
	if err != nil {
		a.metrics.Adjudication("failed")
		a.logger.Warn("adjudication call failed, not escalating", zap.Error(err))
		return model.Verdict{Reason: "adjudication unavailable"}
	}

	verdict, ok := ParseVerdict(raw)
	switch {
	case !ok:
		a.metrics.Adjudication("ambiguous")
		a.logger.Info("ambiguous adjudication response", zap.String("response", raw))
	case verdict.Escalate:
		a.metrics.Adjudication("escalate")
	default:
		a.metrics.Adjudication("no_escalate")
	}
	return verdict
}
