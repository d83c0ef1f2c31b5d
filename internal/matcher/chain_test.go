package matcher

import (
	"context"
	"errors"
	"testing"

	"supportbot/internal/domain"
)

type stubStrategy struct {
	name   string
	result domain.MatchResult
	err    error
	calls  int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Match(ctx context.Context, text string) (domain.MatchResult, error) {
	s.calls++
	return s.result, s.err
}

func TestChain_FirstStrategyWins(t *testing.T) {
	faq := &domain.FAQEntry{ID: "domain_verify"}
	semantic := &stubStrategy{name: domain.StrategySemantic,
		result: domain.MatchResult{FAQ: faq, Confidence: 0.9, Strategy: domain.StrategySemantic}}
	keyword := &stubStrategy{name: domain.StrategyKeyword}

	c := NewChain(testLogger(), semantic, keyword)
	result, err := c.Match(context.Background(), "domain help")
	if err != nil {
		t.Fatal(err)
	}
	if result.Strategy != domain.StrategySemantic {
		t.Errorf("strategy = %q", result.Strategy)
	}
	if keyword.calls != 0 {
		t.Error("keyword strategy should not run when semantic succeeds")
	}
}

func TestChain_FallsBackOnError(t *testing.T) {
	faq := &domain.FAQEntry{ID: "webhook_setup"}
	semantic := &stubStrategy{name: domain.StrategySemantic, err: errors.New("api down")}
	keyword := &stubStrategy{name: domain.StrategyKeyword,
		result: domain.MatchResult{FAQ: faq, Confidence: 0.67, Strategy: domain.StrategyKeyword}}

	c := NewChain(testLogger(), semantic, keyword)
	result, err := c.Match(context.Background(), "webhook help")
	if err != nil {
		t.Fatal(err)
	}
	if result.FAQ == nil || result.FAQ.ID != "webhook_setup" {
		t.Errorf("fallback result = %+v", result)
	}
	if result.Strategy != domain.StrategyKeyword {
		t.Errorf("strategy = %q", result.Strategy)
	}
}

func TestChain_NoMatchDoesNotFallBack(t *testing.T) {
	// A clean no-match from the semantic strategy is an answer, not a failure.
	semantic := &stubStrategy{name: domain.StrategySemantic,
		result: domain.NoMatch(domain.StrategySemantic)}
	keyword := &stubStrategy{name: domain.StrategyKeyword,
		result: domain.MatchResult{FAQ: &domain.FAQEntry{ID: "x"}, Confidence: 1, Strategy: domain.StrategyKeyword}}

	c := NewChain(testLogger(), semantic, keyword)
	result, err := c.Match(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if result.Matched() {
		t.Errorf("semantic no-match must be final, got %+v", result)
	}
	if keyword.calls != 0 {
		t.Error("keyword strategy ran after a clean semantic no-match")
	}
}

func TestChain_AllStrategiesFail(t *testing.T) {
	semantic := &stubStrategy{name: domain.StrategySemantic, err: errors.New("api down")}
	keyword := &stubStrategy{name: domain.StrategyKeyword, err: errors.New("also down")}

	c := NewChain(testLogger(), semantic, keyword)
	if _, err := c.Match(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when every strategy fails")
	}
}

func TestChain_MatchDeterministicSkipsSemantic(t *testing.T) {
	semantic := &stubStrategy{name: domain.StrategySemantic,
		result: domain.MatchResult{FAQ: &domain.FAQEntry{ID: "wrong"}, Confidence: 1, Strategy: domain.StrategySemantic}}
	keyword := &stubStrategy{name: domain.StrategyKeyword,
		result: domain.MatchResult{FAQ: &domain.FAQEntry{ID: "right"}, Confidence: 0.5, Strategy: domain.StrategyKeyword}}

	c := NewChain(testLogger(), semantic, keyword)
	result, err := c.MatchDeterministic(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if semantic.calls != 0 {
		t.Error("semantic strategy must not run in deterministic mode")
	}
	if result.FAQ == nil || result.FAQ.ID != "right" {
		t.Errorf("result = %+v", result)
	}
}

func TestChain_FailuresNotCached(t *testing.T) {
	semantic := &stubStrategy{name: domain.StrategySemantic, err: errors.New("transient")}
	keyword := &stubStrategy{name: domain.StrategyKeyword,
		result: domain.NoMatch(domain.StrategyKeyword)}

	c := NewChain(testLogger(), semantic, keyword)
	c.Match(context.Background(), "first")
	c.Match(context.Background(), "second")

	if semantic.calls != 2 {
		t.Errorf("semantic tried %d times, want 2: failures must not be cached", semantic.calls)
	}
}
