// Package analyze mines support-channel history for question/answer pairs
// and proposes FAQ candidates from the recurring ones.
package analyze

import (
	"regexp"
	"sort"
	"strings"

	"supportbot/internal/domain"
)

// answerWindow is how many messages after a question may contain the
// team's answer for the two to count as a pair.
const answerWindow = 4

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "how": true,
	"what": true, "when": true, "where": true, "why": true, "does": true,
	"this": true, "that": true, "with": true, "have": true, "from": true,
	"they": true, "will": true, "would": true, "there": true, "their": true,
	"about": true, "which": true, "should": true, "could": true, "been": true,
	"was": true, "were": true, "is": true, "it": true, "its": true,
	"any": true, "anyone": true, "someone": true, "please": true, "thanks": true,
	"help": true, "get": true, "got": true, "just": true, "like": true,
	"know": true, "need": true, "want": true, "trying": true, "still": true,
}

var questionStarters = []string{
	"how ", "what ", "why ", "where ", "when ", "who ", "which ",
	"can ", "could ", "would ", "should ", "does ", "do ", "did ",
	"is ", "are ", "am ", "has ", "have ", "will ",
}

var troubleshootingRe = regexp.MustCompile(`(?i)\b(error|fail|failed|failing|broken|stuck|not working|doesn't work|won't|cannot|can't|issue|problem)\b`)

// Question type buckets.
const (
	BucketHowTo           = "how_to"
	BucketWhatIs          = "what_is"
	BucketWhy             = "why"
	BucketTroubleshooting = "troubleshooting"
	BucketOther           = "other"
)

// QAPair is a user question matched with the team answer that followed it.
type QAPair struct {
	Question string
	Answer   string
	Asker    string
	Answerer string
	Bucket   string
	Keywords []string
}

// FAQSuggestion is a proposed knowledge-base entry derived from one or more
// similar question/answer pairs.
type FAQSuggestion struct {
	Question  string
	Answer    string
	Keywords  []string
	Seen      int
	Answerers []string
}

// Report is the result of one analysis run.
type Report struct {
	MessageCount int
	Pairs        []QAPair
	Buckets      map[string]int
	Suggestions  []FAQSuggestion
}

// Analyzer mines channel history. Team usernames identify answerers; their
// own messages are never treated as questions.
type Analyzer struct {
	team map[string]bool
}

func New(teamUsernames []string) *Analyzer {
	team := make(map[string]bool, len(teamUsernames))
	for _, name := range teamUsernames {
		team[strings.ToLower(name)] = true
	}
	return &Analyzer{team: team}
}

// Analyze walks messages in chronological order and builds the full report.
func (a *Analyzer) Analyze(msgs []domain.Message) Report {
	pairs := a.ExtractPairs(msgs)

	buckets := make(map[string]int)
	for _, p := range pairs {
		buckets[p.Bucket]++
	}

	return Report{
		MessageCount: len(msgs),
		Pairs:        pairs,
		Buckets:      buckets,
		Suggestions:  suggest(pairs),
	}
}

// ExtractPairs finds user questions answered by a team member within the
// next few messages. Messages must be oldest first.
func (a *Analyzer) ExtractPairs(msgs []domain.Message) []QAPair {
	var pairs []QAPair
	for i, m := range msgs {
		if m.Bot || a.isTeam(m.AuthorName) || !IsQuestion(m.Content) {
			continue
		}
		for j := i + 1; j < len(msgs) && j <= i+answerWindow; j++ {
			reply := msgs[j]
			if reply.Bot || !a.isTeam(reply.AuthorName) || reply.Content == "" {
				continue
			}
			pairs = append(pairs, QAPair{
				Question: m.Content,
				Answer:   reply.Content,
				Asker:    m.AuthorName,
				Answerer: reply.AuthorName,
				Bucket:   Bucket(m.Content),
				Keywords: Keywords(m.Content, 6),
			})
			break
		}
	}
	return pairs
}

func (a *Analyzer) isTeam(name string) bool { return a.team[strings.ToLower(name)] }

// IsQuestion reports whether text reads like a support question.
func IsQuestion(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	if strings.Contains(t, "?") {
		return true
	}
	for _, starter := range questionStarters {
		if strings.HasPrefix(t, starter) {
			return true
		}
	}
	return false
}

// Bucket classifies a question by its opening phrase, with trouble words
// taking precedence over phrasing.
func Bucket(question string) string {
	t := strings.ToLower(strings.TrimSpace(question))
	if troubleshootingRe.MatchString(t) {
		return BucketTroubleshooting
	}
	switch {
	case strings.HasPrefix(t, "how "):
		return BucketHowTo
	case strings.HasPrefix(t, "what "), strings.HasPrefix(t, "which "):
		return BucketWhatIs
	case strings.HasPrefix(t, "why "):
		return BucketWhy
	default:
		return BucketOther
	}
}

var wordRe = regexp.MustCompile(`[a-z0-9][a-z0-9_-]{2,}`)

// Keywords extracts up to max distinct content words in order of first
// appearance, skipping stopwords.
func Keywords(text string, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= max {
			break
		}
	}
	return out
}

// suggest groups pairs that share at least two keywords and turns each
// group into one FAQ candidate, most frequently seen first.
func suggest(pairs []QAPair) []FAQSuggestion {
	var groups []FAQSuggestion
	assigned := make([]bool, len(pairs))

	for i, p := range pairs {
		if assigned[i] {
			continue
		}
		g := FAQSuggestion{
			Question:  p.Question,
			Answer:    p.Answer,
			Keywords:  p.Keywords,
			Seen:      1,
			Answerers: []string{p.Answerer},
		}
		assigned[i] = true
		for j := i + 1; j < len(pairs); j++ {
			if assigned[j] {
				continue
			}
			if keywordOverlap(p.Keywords, pairs[j].Keywords) >= 2 {
				assigned[j] = true
				g.Seen++
				g.Answerers = appendUnique(g.Answerers, pairs[j].Answerer)
			}
		}
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Seen > groups[j].Seen })
	return groups
}

func keywordOverlap(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	n := 0
	for _, w := range b {
		if set[w] {
			n++
		}
	}
	return n
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
