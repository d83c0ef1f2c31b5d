// Package guard implements the security gate in front of the triage
// pipeline: per-user rate limiting, injection detection, input
// sanitization, and validation of semantic matcher output.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"supportbot/internal/config"
	"supportbot/internal/domain"
	"supportbot/internal/metrics"
)

// FAQResolver resolves FAQ IDs for output validation.
type FAQResolver interface {
	GetByID(id string) *domain.FAQEntry
}

// Guard gates every inbound message. A denial never drops the message;
// the coordinator downgrades to the deterministic matcher instead.
type Guard struct {
	limiter   *RateLimiter
	injection []*regexp.Regexp
	maxLen    int
	recorder  domain.EventRecorder
	logger    *slog.Logger
}

func New(cfg config.GuardConfig, recorder domain.EventRecorder, logger *slog.Logger) (*Guard, error) {
	patterns, err := compilePatterns(cfg.Patterns())
	if err != nil {
		return nil, err
	}
	return &Guard{
		limiter:   NewRateLimiter(cfg.RateLimitMax, time.Duration(cfg.RateLimitWindowSeconds)*time.Second),
		injection: patterns,
		maxLen:    cfg.MaxMessageLength,
		recorder:  recorder,
		logger:    logger,
	}, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("invalid injection pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Admit evaluates userID's message. Injection detection runs on the raw
// text regardless of rate-limit state; a Suspicious verdict takes
// precedence over RateLimited in the returned decision, but both are
// recorded as security events.
func (g *Guard) Admit(ctx context.Context, userID, text string) domain.Decision {
	allowed, retryAfter := g.limiter.Allow(userID)
	if !allowed {
		metrics.SecurityBlocks.Inc()
		g.logger.Warn("rate limit exceeded", "user", userID, "retry_after", retryAfter)
		g.record(ctx, domain.SecurityEvent{
			Kind:    domain.SecurityRateLimited,
			UserID:  userID,
			Details: fmt.Sprintf("retry after %s", retryAfter),
		})
	}

	if pattern, found := g.DetectInjection(text); found {
		metrics.SecurityBlocks.Inc()
		g.logger.Warn("suspicious input detected", "user", userID, "pattern", pattern)
		g.record(ctx, domain.SecurityEvent{
			Kind:    domain.SecuritySuspicious,
			UserID:  userID,
			Details: pattern,
		})
		return domain.Suspicious(pattern)
	}

	if !allowed {
		return domain.RateLimited(retryAfter)
	}
	return domain.Allowed()
}

// DetectInjection checks text against the ordered pattern list. First match
// wins; the matched literal substring is returned for logging.
func (g *Guard) DetectInjection(text string) (string, bool) {
	for _, re := range g.injection {
		if m := re.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}

// MaxLen returns the configured sanitization length cap.
func (g *Guard) MaxLen() int { return g.maxLen }

const truncationMarker = "…"

// Sanitize narrows the input: control characters are stripped (newlines and
// all non-ASCII text survive), runs of spaces and tabs collapse to a single
// space, and the result is capped at maxLen runes with a truncation marker.
// Sanitize never fails and is idempotent for a fixed maxLen.
func Sanitize(text string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := false
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t':
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
		case r < 32 || r == 127:
			// drop control characters
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	out := strings.TrimFunc(b.String(), unicode.IsSpace)

	if maxLen > 0 {
		runes := []rune(out)
		if len(runes) > maxLen {
			cut := maxLen - len([]rune(truncationMarker))
			if cut < 0 {
				cut = 0
			}
			out = strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + truncationMarker
		}
	}
	return out
}

// ValidateOutput checks a semantic matcher result: confidence must lie in
// [0,1] and a non-empty FAQ ID must resolve in the store. The deterministic
// matcher cannot produce invalid IDs by construction and is never validated.
func (g *Guard) ValidateOutput(ctx context.Context, faqID string, confidence float64, store FAQResolver) bool {
	if confidence < 0 || confidence > 1 {
		g.record(ctx, domain.SecurityEvent{
			Kind:    domain.SecurityInvalidOutput,
			Details: fmt.Sprintf("confidence %g out of range", confidence),
		})
		return false
	}
	if faqID != "" && store.GetByID(faqID) == nil {
		g.record(ctx, domain.SecurityEvent{
			Kind:    domain.SecurityInvalidOutput,
			Details: "unknown faq id: " + faqID,
		})
		return false
	}
	return true
}

func (g *Guard) record(ctx context.Context, ev domain.SecurityEvent) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.RecordSecurity(ctx, ev); err != nil {
		g.logger.Error("failed to record security event", "kind", ev.Kind, "err", err)
	}
}
