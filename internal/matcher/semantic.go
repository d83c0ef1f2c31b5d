package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"supportbot/internal/domain"
)

const semanticSystemPrompt = `You match community support questions against a FAQ database.
Given the question and the knowledge context, pick the single best matching FAQ.
Respond with ONLY a JSON object of this exact shape:
{"faq_id": "<id or null>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}
Use null for faq_id and 0.0 confidence when no FAQ fits.`

// ContextProvider assembles the knowledge context for a query.
type ContextProvider interface {
	ContextForQuery(query string, maxTokens int) string
	GetByID(id string) *domain.FAQEntry
}

// Completer is the external text-completion service.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ValidateFunc rejects semantic results that reference unknown FAQ ids or
// carry out-of-range confidence. Wired to the security guard's output
// validation.
type ValidateFunc func(ctx context.Context, faqID string, confidence float64) bool

// SemanticStrategy delegates matching to an external completion service.
// Every failure mode (transport, parse, validation) is a soft failure: the
// returned error advances the chain to the deterministic strategy and is
// never remembered across messages.
type SemanticStrategy struct {
	completer     Completer
	store         ContextProvider
	validate      ValidateFunc
	maxTokens     int
	minConfidence float64
	logger        *slog.Logger
}

type SemanticConfig struct {
	Completer     Completer
	Store         ContextProvider
	Validate      ValidateFunc
	MaxTokens     int
	MinConfidence float64
	Logger        *slog.Logger
}

func NewSemanticStrategy(cfg SemanticConfig) *SemanticStrategy {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.3
	}
	return &SemanticStrategy{
		completer:     cfg.Completer,
		store:         cfg.Store,
		validate:      cfg.Validate,
		maxTokens:     cfg.MaxTokens,
		minConfidence: cfg.MinConfidence,
		logger:        cfg.Logger,
	}
}

func (s *SemanticStrategy) Name() string { return domain.StrategySemantic }

// semanticReply is the minimal structured record expected from the service.
type semanticReply struct {
	FAQID      *string `json:"faq_id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (s *SemanticStrategy) Match(ctx context.Context, text string) (domain.MatchResult, error) {
	knowledgeCtx := s.store.ContextForQuery(text, s.maxTokens)

	userPrompt := fmt.Sprintf("## Question\n%s\n\n## Knowledge Context\n%s", text, knowledgeCtx)

	raw, err := s.completer.Complete(ctx, semanticSystemPrompt, userPrompt)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("semantic completion: %w", err)
	}

	reply, err := parseSemanticReply(raw)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("semantic parse: %w", err)
	}

	// Reasoning is logged for operators; it never reaches the end user.
	s.logger.Debug("semantic match", "faq_id", derefOr(reply.FAQID, "null"),
		"confidence", reply.Confidence, "reasoning", reply.Reasoning)

	faqID := derefOr(reply.FAQID, "")
	if !s.validate(ctx, faqID, reply.Confidence) {
		return domain.MatchResult{}, fmt.Errorf("semantic result failed validation: id=%q confidence=%g", faqID, reply.Confidence)
	}

	if faqID == "" || reply.Confidence < s.minConfidence {
		return domain.NoMatch(domain.StrategySemantic), nil
	}
	return domain.MatchResult{
		FAQ:        s.store.GetByID(faqID),
		Confidence: reply.Confidence,
		Strategy:   domain.StrategySemantic,
	}, nil
}

// parseSemanticReply extracts the structured record from the service's free
// text. Tolerates fenced code blocks and surrounding prose.
func parseSemanticReply(raw string) (*semanticReply, error) {
	content := strings.TrimSpace(raw)

	// Strip markdown code fences if present.
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	var reply semanticReply
	if err := json.Unmarshal([]byte(content), &reply); err == nil {
		return &reply, nil
	}

	// Fallback: locate JSON object boundaries within surrounding text.
	if start, end := findJSONBounds(content); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end]), &reply); err == nil {
			return &reply, nil
		}
	}

	return nil, fmt.Errorf("no parseable JSON object in %q", truncateForLog(raw, 120))
}

// findJSONBounds locates the first top-level JSON object in s, honoring
// string literals and escapes. Returns (-1, -1) when none is found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return -1, -1
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++ // skip escaped character
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
