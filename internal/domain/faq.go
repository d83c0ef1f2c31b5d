package domain

// FAQEntry is a matching target loaded from the knowledge store.
// The FAQ set is read-only after load.
type FAQEntry struct {
	ID               string   `json:"id" yaml:"id"`
	Category         string   `json:"category" yaml:"category"`
	Keywords         []string `json:"keywords" yaml:"keywords"`
	QuestionPatterns []string `json:"question_patterns" yaml:"question_patterns"`
	Answer           string   `json:"answer" yaml:"answer"`
	DocsLink         string   `json:"docs_link,omitempty" yaml:"docs_link"`
}

// Strategy provenance tags for MatchResult.
const (
	StrategyKeyword  = "keyword"
	StrategySemantic = "semantic"
)

// MatchResult is the outcome of one matching attempt.
// Confidence is 0.0 exactly when FAQ is nil.
type MatchResult struct {
	FAQ        *FAQEntry
	Confidence float64
	Strategy   string
}

// Matched reports whether a FAQ entry was found.
func (r MatchResult) Matched() bool { return r.FAQ != nil }

// NoMatch is the canonical "tried and found nothing" result.
func NoMatch(strategy string) MatchResult {
	return MatchResult{Strategy: strategy}
}
