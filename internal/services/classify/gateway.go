package classify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/rules"
	"github.com/ivankudzin/tgapp/moderator/internal/metrics"
)

const defaultCallTimeout = 10 * time.Second

// Completer is the external classification collaborator.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Config struct {
	CallTimeout time.Duration
}

// Gateway never fails: every error path resolves to OK.
type Gateway struct {
	completer Completer
	limiter   *Limiter
	cache     *Cache
	allowlist *Allowlist
	metrics   *metrics.Metrics
	logger    *zap.Logger
	timeout   time.Duration
	group     singleflight.Group
}

func NewGateway(completer Completer, limiter *Limiter, cache *Cache, allowlist *Allowlist, m *metrics.Metrics, logger *zap.Logger, cfg Config) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Gateway{
		completer: completer,
		limiter:   limiter,
		cache:     cache,
		allowlist: allowlist,
		metrics:   m,
		logger:    logger,
		timeout:   cfg.CallTimeout,
	}
}

func (g *Gateway) Classify(ctx context.Context, text string) model.ClassificationResult {
	key := rules.Normalize(text)
	if key == "" {
		return model.OKResult()
	}

	if g.cache != nil {
		if cached, ok := g.cache.Get(ctx, key); ok {
			g.metrics.GatewayOutcome("cache_hit")
			return g.allowlist.Apply(text, cached)
		}
	}

	if g.completer == nil {
		g.metrics.GatewayOutcome("unconfigured")
		return model.OKResult()
	}

	value, _, _ := g.group.Do(key, func() (any, error) {
		return g.call(ctx, text, key), nil
	})
	result := value.(model.ClassificationResult)
	// Shared results were computed against another caller's raw text.
	return g.allowlist.Apply(text, result)
}

func (g *Gateway) call(ctx context.Context, text, key string) model.ClassificationResult {
	release, ok := g.limiter.TryAcquire(ctx)
	if !ok {
		g.metrics.GatewayOutcome("skipped_budget")
		return model.OKResult()
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.completer.Complete(callCtx, classifySystemPrompt, text)
	if err != nil {
		g.metrics.GatewayOutcome("failed")
		g.logger.Warn("classification call failed, failing open", zap.Error(err))
		return model.OKResult()
	}

	result := g.allowlist.Apply(text, model.NewClassificationResult(ParseCategory(raw)))
	g.metrics.GatewayOutcome("classified")
	g.metrics.Category(string(result.Category))
	if g.cache != nil {
		g.cache.Set(ctx, key, result)
	}
	return result
}
