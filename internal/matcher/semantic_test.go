package matcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"supportbot/internal/domain"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
	seen  string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.seen = user
	return f.reply, f.err
}

type fakeStore struct {
	faqs map[string]*domain.FAQEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{faqs: map[string]*domain.FAQEntry{
		"domain_verify": {ID: "domain_verify", Answer: "Check your DNS records."},
	}}
}

func (f *fakeStore) ContextForQuery(query string, maxTokens int) string {
	return "## FAQ Database\ndomain_verify"
}

func (f *fakeStore) GetByID(id string) *domain.FAQEntry { return f.faqs[id] }

func acceptAll(ctx context.Context, faqID string, confidence float64) bool { return true }

func newTestSemantic(c Completer, validate ValidateFunc) *SemanticStrategy {
	if validate == nil {
		validate = acceptAll
	}
	return NewSemanticStrategy(SemanticConfig{
		Completer: c,
		Store:     newFakeStore(),
		Validate:  validate,
		Logger:    testLogger(),
	})
}

func TestSemanticMatch_PlainJSON(t *testing.T) {
	c := &fakeCompleter{reply: `{"faq_id": "domain_verify", "confidence": 0.85, "reasoning": "DNS question"}`}
	s := newTestSemantic(c, nil)

	result, err := s.Match(context.Background(), "why is my domain stuck")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.FAQ == nil || result.FAQ.ID != "domain_verify" {
		t.Fatalf("faq = %v", result.FAQ)
	}
	if result.Confidence != 0.85 {
		t.Errorf("confidence = %v", result.Confidence)
	}
	if result.Strategy != domain.StrategySemantic {
		t.Errorf("strategy = %q", result.Strategy)
	}
	if !strings.Contains(c.seen, "why is my domain stuck") {
		t.Error("question missing from prompt")
	}
	if !strings.Contains(c.seen, "## FAQ Database") {
		t.Error("knowledge context missing from prompt")
	}
}

func TestSemanticMatch_FencedJSON(t *testing.T) {
	c := &fakeCompleter{reply: "```json\n{\"faq_id\": \"domain_verify\", \"confidence\": 0.7, \"reasoning\": \"x\"}\n```"}
	s := newTestSemantic(c, nil)

	result, err := s.Match(context.Background(), "domain help")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.FAQ == nil || result.Confidence != 0.7 {
		t.Fatalf("result = %+v", result)
	}
}

func TestSemanticMatch_JSONWithSurroundingProse(t *testing.T) {
	c := &fakeCompleter{reply: `Sure, here is my answer: {"faq_id": "domain_verify", "confidence": 0.6, "reasoning": "it fits"} hope that helps`}
	s := newTestSemantic(c, nil)

	result, err := s.Match(context.Background(), "domain help")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.FAQ == nil || result.Confidence != 0.6 {
		t.Fatalf("result = %+v", result)
	}
}

func TestSemanticMatch_NullID(t *testing.T) {
	c := &fakeCompleter{reply: `{"faq_id": null, "confidence": 0.0, "reasoning": "nothing fits"}`}
	s := newTestSemantic(c, nil)

	result, err := s.Match(context.Background(), "off-topic banter")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Matched() {
		t.Errorf("expected no match, got %+v", result)
	}
	if result.Strategy != domain.StrategySemantic {
		t.Errorf("strategy = %q", result.Strategy)
	}
}

func TestSemanticMatch_BelowMinConfidence(t *testing.T) {
	c := &fakeCompleter{reply: `{"faq_id": "domain_verify", "confidence": 0.2, "reasoning": "weak"}`}
	s := newTestSemantic(c, nil)

	result, err := s.Match(context.Background(), "maybe domains?")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Matched() {
		t.Errorf("0.2 is below the floor, got %+v", result)
	}
}

func TestSemanticMatch_TransportErrorIsSoftFailure(t *testing.T) {
	c := &fakeCompleter{err: errors.New("connection refused")}
	s := newTestSemantic(c, nil)

	if _, err := s.Match(context.Background(), "domain help"); err == nil {
		t.Fatal("expected error for transport failure")
	}
}

func TestSemanticMatch_UnparseableReply(t *testing.T) {
	c := &fakeCompleter{reply: "I think the best FAQ is probably the domain one."}
	s := newTestSemantic(c, nil)

	if _, err := s.Match(context.Background(), "domain help"); err == nil {
		t.Fatal("expected error for unparseable reply")
	}
}

func TestSemanticMatch_ValidationRejection(t *testing.T) {
	c := &fakeCompleter{reply: `{"faq_id": "made_up_faq", "confidence": 0.9, "reasoning": "x"}`}
	rejectAll := func(ctx context.Context, faqID string, confidence float64) bool { return false }
	s := newTestSemantic(c, rejectAll)

	if _, err := s.Match(context.Background(), "domain help"); err == nil {
		t.Fatal("rejected output must surface as an error")
	}
}

func TestFindJSONBounds(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{`before {"a": {"b": 2}} after`, `{"a": {"b": 2}}`},
		{`{"s": "brace } in string"}`, `{"s": "brace } in string"}`},
		{`{"s": "escaped \" quote"}`, `{"s": "escaped \" quote"}`},
		{`no json here`, ``},
		{`{"unterminated": 1`, ``},
	}
	for _, tt := range tests {
		start, end := findJSONBounds(tt.in)
		var got string
		if start >= 0 && end > start {
			got = tt.in[start:end]
		}
		if got != tt.want {
			t.Errorf("findJSONBounds(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
