package matcher

import (
	"context"
	"log/slog"
	"math"
	"os"
	"testing"

	"supportbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testFAQs() []domain.FAQEntry {
	return []domain.FAQEntry{
		{
			ID:               "domain_verify",
			Category:         "Domain Verification",
			Keywords:         []string{"domain", "verify", "pending"},
			QuestionPatterns: []string{`domain.*(pending|stuck)`},
			Answer:           "Check your DNS records and wait up to 24 hours.",
		},
		{
			ID:       "webhook_setup",
			Category: "Webhooks",
			Keywords: []string{"webhook", "endpoint", "events"},
			Answer:   "Create a webhook from the console settings page.",
		},
		{
			ID:       "empty_keywords",
			Category: "Misc",
			Answer:   "Entry without keywords.",
		},
	}
}

func TestKeywordMatch_Scores(t *testing.T) {
	s := NewKeywordStrategy(testFAQs(), testLogger())

	tests := []struct {
		name    string
		text    string
		wantID  string
		wantMin float64
		wantMax float64
	}{
		{
			// All three keywords plus the pattern; capped at 1.0.
			name: "full match with pattern bonus capped",
			text: "my DOMAIN verify is still pending",
			wantID: "domain_verify", wantMin: 1.0, wantMax: 1.0,
		},
		{
			// One of three keywords, no pattern.
			name: "partial keyword match",
			text: "is there a webhook for this?",
			wantID: "webhook_setup", wantMin: 1.0 / 3, wantMax: 1.0 / 3,
		},
		{
			// One keyword plus the pattern bonus: 1/3 + 0.3.
			name: "pattern bonus added",
			text: "domain stuck for two days now",
			wantID: "domain_verify", wantMin: 1.0/3 + 0.3, wantMax: 1.0/3 + 0.3,
		},
		{
			name: "no match",
			text: "completely unrelated chatter",
			wantID: "", wantMin: 0, wantMax: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.Match(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if tt.wantID == "" {
				if result.Matched() {
					t.Fatalf("expected no match, got %v (%.2f)", result.FAQ.ID, result.Confidence)
				}
				return
			}
			if !result.Matched() || result.FAQ.ID != tt.wantID {
				t.Fatalf("matched = %v, want %s", result.FAQ, tt.wantID)
			}
			if result.Confidence < tt.wantMin-1e-9 || result.Confidence > tt.wantMax+1e-9 {
				t.Errorf("confidence = %v, want in [%v, %v]", result.Confidence, tt.wantMin, tt.wantMax)
			}
			if result.Strategy != domain.StrategyKeyword {
				t.Errorf("strategy = %q", result.Strategy)
			}
		})
	}
}

func TestKeywordMatch_TieBreakDeclarationOrder(t *testing.T) {
	faqs := []domain.FAQEntry{
		{ID: "first", Keywords: []string{"deploy"}},
		{ID: "second", Keywords: []string{"deploy"}},
	}
	s := NewKeywordStrategy(faqs, testLogger())

	result, err := s.Match(context.Background(), "deploy failed")
	if err != nil {
		t.Fatal(err)
	}
	if result.FAQ == nil || result.FAQ.ID != "first" {
		t.Errorf("tie must resolve to the earliest entry, got %v", result.FAQ)
	}
	if math.Abs(result.Confidence-1.0) > 1e-9 {
		t.Errorf("confidence = %v, want 1.0", result.Confidence)
	}
}

func TestKeywordMatch_EmptyKeywordsNeverWins(t *testing.T) {
	s := NewKeywordStrategy(testFAQs(), testLogger())

	result, err := s.Match(context.Background(), "Entry without keywords misc")
	if err != nil {
		t.Fatal(err)
	}
	if result.Matched() && result.FAQ.ID == "empty_keywords" {
		t.Error("entry without keywords must score zero")
	}
}

func TestKeywordMatch_InvalidPatternLosesOnlyBonus(t *testing.T) {
	faqs := []domain.FAQEntry{
		{ID: "broken", Keywords: []string{"token"}, QuestionPatterns: []string{`(unclosed`}},
	}
	s := NewKeywordStrategy(faqs, testLogger())

	result, err := s.Match(context.Background(), "token expired")
	if err != nil {
		t.Fatal(err)
	}
	if result.FAQ == nil || result.FAQ.ID != "broken" {
		t.Fatal("keyword scoring must survive a broken pattern")
	}
	if math.Abs(result.Confidence-1.0) > 1e-9 {
		t.Errorf("confidence = %v, want 1.0 without bonus", result.Confidence)
	}
}

func TestKeywordMatch_CaseInsensitive(t *testing.T) {
	s := NewKeywordStrategy(testFAQs(), testLogger())

	result, err := s.Match(context.Background(), "WEBHOOK EVENTS not arriving at my ENDPOINT")
	if err != nil {
		t.Fatal(err)
	}
	if result.FAQ == nil || result.FAQ.ID != "webhook_setup" {
		t.Fatalf("got %v", result.FAQ)
	}
	if math.Abs(result.Confidence-1.0) > 1e-9 {
		t.Errorf("confidence = %v, want 1.0", result.Confidence)
	}
}
