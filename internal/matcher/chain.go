package matcher

import (
	"context"
	"log/slog"

	"supportbot/internal/domain"
)

// Strategy is one way of matching a message against the FAQ set.
type Strategy interface {
	Name() string
	Match(ctx context.Context, text string) (domain.MatchResult, error)
}

// Chain tries strategies in order until one returns without error. A
// strategy error is a soft failure: the chain logs it and moves on, and
// nothing about the failure is remembered for later messages.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, logger: logger}
}

// Match runs the full chain.
func (c *Chain) Match(ctx context.Context, text string) (domain.MatchResult, error) {
	return c.match(ctx, text, false)
}

// MatchDeterministic skips the semantic strategy. Used for degraded
// processing, where message content must not reach the external service.
func (c *Chain) MatchDeterministic(ctx context.Context, text string) (domain.MatchResult, error) {
	return c.match(ctx, text, true)
}

func (c *Chain) match(ctx context.Context, text string, deterministicOnly bool) (domain.MatchResult, error) {
	var lastErr error
	for _, s := range c.strategies {
		if deterministicOnly && s.Name() == domain.StrategySemantic {
			continue
		}
		result, err := s.Match(ctx, text)
		if err != nil {
			c.logger.Warn("match strategy failed, falling back", "strategy", s.Name(), "err", err)
			lastErr = err
			continue
		}
		return result, nil
	}
	if lastErr != nil {
		return domain.MatchResult{}, lastErr
	}
	return domain.NoMatch(""), nil
}
