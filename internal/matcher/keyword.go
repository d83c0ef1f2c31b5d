// Package matcher scores messages against the FAQ set. Two strategies
// implement the same contract: a deterministic keyword scorer and a
// semantic scorer backed by an external completion service, chained with
// fallback so the semantic path can never take a message down with it.
package matcher

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"supportbot/internal/domain"
)

// patternBonus is added to an entry's score when one of its question
// patterns matches the message.
const patternBonus = 0.3

// KeywordStrategy is the deterministic scorer: per entry,
// matches/total keywords plus a fixed bonus for a pattern hit, capped at 1.
type KeywordStrategy struct {
	faqs     []domain.FAQEntry
	keywords [][]string         // pre-lowered keywords per entry
	patterns [][]*regexp.Regexp // compiled question patterns per entry
	logger   *slog.Logger
}

func NewKeywordStrategy(faqs []domain.FAQEntry, logger *slog.Logger) *KeywordStrategy {
	s := &KeywordStrategy{
		faqs:     faqs,
		keywords: make([][]string, len(faqs)),
		patterns: make([][]*regexp.Regexp, len(faqs)),
		logger:   logger,
	}
	for i, faq := range faqs {
		kws := make([]string, len(faq.Keywords))
		for j, kw := range faq.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		s.keywords[i] = kws

		for _, p := range faq.QuestionPatterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				// A broken stored pattern loses its bonus but never the entry.
				logger.Warn("skipping invalid question pattern", "faq", faq.ID, "pattern", p, "err", err)
				continue
			}
			s.patterns[i] = append(s.patterns[i], re)
		}
	}
	return s
}

func (s *KeywordStrategy) Name() string { return domain.StrategyKeyword }

// Match scores every entry and returns the first strict maximum in
// declaration order, or a no-match result when nothing scores above zero.
// It cannot fail.
func (s *KeywordStrategy) Match(ctx context.Context, text string) (domain.MatchResult, error) {
	lower := strings.ToLower(text)

	var best *domain.FAQEntry
	bestScore := 0.0

	for i := range s.faqs {
		score := s.score(i, lower)
		if score > bestScore {
			bestScore = score
			best = &s.faqs[i]
		}
	}

	if best == nil {
		return domain.NoMatch(domain.StrategyKeyword), nil
	}
	return domain.MatchResult{FAQ: best, Confidence: bestScore, Strategy: domain.StrategyKeyword}, nil
}

// score computes one entry's score against the lowercased message.
// An entry with no keywords always scores 0.
func (s *KeywordStrategy) score(i int, lower string) float64 {
	kws := s.keywords[i]
	if len(kws) == 0 {
		return 0
	}

	matches := 0
	for _, kw := range kws {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	score := float64(matches) / float64(len(kws))

	for _, re := range s.patterns[i] {
		if re.MatchString(lower) {
			score += patternBonus
			break
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
