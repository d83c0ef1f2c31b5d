package analyze

import (
	"reflect"
	"testing"

	"supportbot/internal/domain"
)

func msg(author, content string) domain.Message {
	return domain.Message{AuthorName: author, Content: content}
}

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"How do I verify my domain?", true},
		{"how do I verify my domain", true},
		{"does the webhook retry", true},
		{"my domain is stuck?", true},
		{"thanks, that worked!", false},
		{"", false},
		{"deploying now", false},
	}
	for _, tt := range tests {
		if got := IsQuestion(tt.text); got != tt.want {
			t.Errorf("IsQuestion(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestBucket(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"How do I set up webhooks?", BucketHowTo},
		{"What is the rate limit?", BucketWhatIs},
		{"Why does verification take so long?", BucketWhy},
		{"How come my build failed?", BucketTroubleshooting}, // trouble words win
		{"my webhook is broken", BucketTroubleshooting},
		{"anyone around?", BucketOther},
	}
	for _, tt := range tests {
		if got := Bucket(tt.text); got != tt.want {
			t.Errorf("Bucket(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("How do I verify my custom domain? The domain is stuck", 6)
	want := []string{"verify", "custom", "domain", "stuck"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keywords = %v, want %v", got, want)
	}

	if got := Keywords("the and for", 6); len(got) != 0 {
		t.Errorf("stopwords leaked: %v", got)
	}
}

func TestExtractPairs(t *testing.T) {
	a := New([]string{"alice"})
	msgs := []domain.Message{
		msg("charlie", "How do I verify my domain?"),
		msg("dana", "same question here"),
		msg("alice", "Check your DNS records, it can take 24h."),
		msg("charlie", "thanks!"),
		msg("dana", "What about webhooks?"),
		// no team answer within the window
		msg("charlie", "no idea"),
		msg("eve", "me neither"),
		msg("frank", "sorry"),
		msg("gus", "dunno"),
		msg("alice", "webhooks are in console settings"),
	}

	pairs := a.ExtractPairs(msgs)
	// dana's webhook question goes unanswered within the window, so only
	// charlie's question pairs up.
	if len(pairs) != 1 {
		t.Fatalf("pairs = %d, want 1: %+v", len(pairs), pairs)
	}
	if pairs[0].Asker != "charlie" || pairs[0].Answerer != "alice" {
		t.Errorf("pair[0] = %+v", pairs[0])
	}
	if pairs[0].Bucket != BucketHowTo {
		t.Errorf("bucket = %q", pairs[0].Bucket)
	}
}

func TestExtractPairs_TeamQuestionsIgnored(t *testing.T) {
	a := New([]string{"alice", "bob"})
	msgs := []domain.Message{
		msg("alice", "Can someone test the new flow?"),
		msg("bob", "done, works"),
	}
	if pairs := a.ExtractPairs(msgs); len(pairs) != 0 {
		t.Errorf("team questions must not produce pairs: %+v", pairs)
	}
}

func TestAnalyze_SuggestionsGroupSimilarQuestions(t *testing.T) {
	a := New([]string{"alice"})
	msgs := []domain.Message{
		msg("charlie", "How do I verify my custom domain?"),
		msg("alice", "Check DNS records."),
		msg("dana", "my custom domain won't verify, help?"),
		msg("alice", "Same as above, DNS records."),
		msg("eve", "What plan includes priority support?"),
		msg("alice", "The business plan."),
	}

	report := a.Analyze(msgs)
	if report.MessageCount != len(msgs) {
		t.Errorf("message count = %d", report.MessageCount)
	}
	if len(report.Pairs) != 3 {
		t.Fatalf("pairs = %d, want 3", len(report.Pairs))
	}
	if len(report.Suggestions) != 2 {
		t.Fatalf("suggestions = %+v, want 2 groups", report.Suggestions)
	}
	if report.Suggestions[0].Seen != 2 {
		t.Errorf("most-seen group first: %+v", report.Suggestions[0])
	}
	if len(report.Suggestions[0].Keywords) == 0 {
		t.Error("suggestion missing keywords")
	}
}
