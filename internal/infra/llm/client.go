package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 64
	defaultTimeout   = 8 * time.Second
)

var ErrEmptyResponse = errors.New("empty completion response")

type Config struct {
	APIKey        string
	Model         string
	FallbackModel string
	MaxTokens     int64
	Timeout       time.Duration
}

// Client completes a system instruction + user text pair. The primary strategy sends the
// instruction as a system block; the fallback inlines it into the user turn on a second model.
type Client struct {
	api     anthropic.Client
	cfg     Config
	breaker *gobreaker.CircuitBreaker[string]
	logger  *zap.Logger
}

// New returns nil when no API key is configured so callers can fail open.
func New(cfg Config, logger *zap.Logger) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = cfg.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("classifier circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		api: anthropic.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithMaxRetries(0),
		),
		cfg:     cfg,
		breaker: breaker,
		logger:  logger,
	}
}

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.breaker.Execute(func() (string, error) {
		text, err := c.primary(ctx, system, user)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		c.logger.Debug("primary completion failed, trying fallback", zap.Error(err))

		text, fallbackErr := c.fallback(ctx, system, user)
		if fallbackErr != nil {
			return "", fmt.Errorf("both completion strategies failed: %w", errors.Join(err, fallbackErr))
		}
		return text, nil
	})
}

func (c *Client) primary(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	msg, err := c.api.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("primary completion: %w", err)
	}
	return firstText(msg)
}

func (c *Client) fallback(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	msg, err := c.api.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.FallbackModel),
		MaxTokens: c.cfg.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(system + "\n\nMessage:\n" + user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("fallback completion: %w", err)
	}
	return firstText(msg)
}

func firstText(msg *anthropic.Message) (string, error) {
	if msg == nil || len(msg.Content) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(msg.Content[0].Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
