// Package knowledge loads the multi-source knowledge base: structured FAQs,
// community support insights, and documentation excerpts. Everything is
// loaded once at startup and read-only afterwards.
package knowledge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"supportbot/internal/domain"
)

const (
	faqFileName      = "knowledge_base.json"
	insightsFileName = "support_insights.md"
	docsDirName      = "docs"
	faqYAMLDirName   = "faqs.d"
)

// Store holds the loaded knowledge base.
type Store struct {
	basePath string
	logger   *slog.Logger

	faqs          []domain.FAQEntry
	byID          map[string]*domain.FAQEntry
	insights      string
	docs          map[string]string
	teamUsernames []string
	skipPatterns  []string
	loaded        bool
}

// faqFile is the on-disk shape of knowledge_base.json.
type faqFile struct {
	FAQs          []domain.FAQEntry `json:"faqs"`
	TeamUsernames []string          `json:"team_usernames"`
	SkipPatterns  []string          `json:"skip_patterns"`
}

func NewStore(basePath string, logger *slog.Logger) *Store {
	return &Store{
		basePath: basePath,
		logger:   logger,
		byID:     make(map[string]*domain.FAQEntry),
		docs:     make(map[string]string),
	}
}

// LoadAll reads every knowledge source under the base path. FAQ declaration
// order is preserved: JSON entries first, then YAML files in name order.
// Missing optional sources are skipped; a missing FAQ file is an error.
func (s *Store) LoadAll() error {
	if s.loaded {
		return nil
	}

	if err := s.loadFAQs(); err != nil {
		return err
	}
	s.loadYAMLFAQs()
	s.reindex() // appends may have moved the backing array
	s.loadInsights()
	s.loadDocs()

	s.loaded = true
	s.logger.Info("knowledge base loaded",
		"faqs", len(s.faqs),
		"docs", len(s.docs),
		"insights_chars", len(s.insights),
	)
	return nil
}

func (s *Store) loadFAQs() error {
	path := filepath.Join(s.basePath, faqFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read FAQ file %s: %w", path, err)
	}

	var f faqFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("cannot parse FAQ file %s: %w", path, err)
	}

	for i := range f.FAQs {
		s.addFAQ(f.FAQs[i])
	}
	s.teamUsernames = f.TeamUsernames
	s.skipPatterns = f.SkipPatterns
	return nil
}

func (s *Store) loadInsights() {
	path := filepath.Join(s.basePath, insightsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cannot read support insights", "path", path, "err", err)
		}
		return
	}
	s.insights = string(data)
}

func (s *Store) loadDocs() {
	dir := filepath.Join(s.basePath, docsDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cannot read docs directory", "dir", dir, "err", err)
		}
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".md") && !strings.HasSuffix(name, ".mdx")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			s.logger.Warn("cannot read doc file", "name", name, "err", err)
			continue
		}
		if content := strings.TrimSpace(string(data)); content != "" {
			stem := strings.TrimSuffix(strings.TrimSuffix(name, ".mdx"), ".md")
			s.docs[stem] = content
		}
	}
}

func (s *Store) addFAQ(faq domain.FAQEntry) {
	if faq.ID == "" {
		s.logger.Warn("skipping FAQ entry without id", "category", faq.Category)
		return
	}
	if _, exists := s.byID[faq.ID]; exists {
		s.logger.Warn("skipping duplicate FAQ id", "id", faq.ID)
		return
	}
	s.faqs = append(s.faqs, faq)
	s.byID[faq.ID] = &s.faqs[len(s.faqs)-1]
}

// reindex rebuilds byID pointers after the backing slice may have moved.
func (s *Store) reindex() {
	s.byID = make(map[string]*domain.FAQEntry, len(s.faqs))
	for i := range s.faqs {
		s.byID[s.faqs[i].ID] = &s.faqs[i]
	}
}

// FAQs returns all entries in declaration order.
func (s *Store) FAQs() []domain.FAQEntry { return s.faqs }

// GetByID returns the FAQ with the given ID, or nil.
func (s *Store) GetByID(id string) *domain.FAQEntry { return s.byID[id] }

// TeamUsernames returns the team list from the knowledge file (may be empty).
func (s *Store) TeamUsernames() []string { return s.teamUsernames }

// SkipPatterns returns the skip-pattern list from the knowledge file.
func (s *Store) SkipPatterns() []string { return s.skipPatterns }

// ContextForQuery assembles a bounded context string for the semantic
// matcher: the full FAQ catalogue, insight sections scored by query-word
// overlap, and the top documentation files. Deterministic for a fixed query
// and loaded state; maxTokens is approximate (1 token ≈ 4 chars).
func (s *Store) ContextForQuery(query string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	queryLower := strings.ToLower(query)

	var parts []string

	faqsJSON, err := json.MarshalIndent(s.faqs, "", "  ")
	if err == nil {
		parts = append(parts, "## FAQ Database\n```json\n"+string(faqsJSON)+"\n```\n")
	}

	if s.insights != "" {
		if sections := relevantSections(s.insights, queryLower, 2000); sections != "" {
			parts = append(parts, "## Support Insights\n"+sections+"\n")
		}
	}

	if docs := s.relevantDocs(queryLower, 3, 1500); docs != "" {
		parts = append(parts, "## Relevant Documentation\n"+docs+"\n")
	}

	full := strings.Join(parts, "\n")
	maxChars := maxTokens * 4
	if len(full) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(full[cut]) {
			cut-- // never split a multi-byte rune
		}
		full = full[:cut] + "\n[Context truncated for length]"
	}
	return full
}

// relevantSections splits markdown content on "## " headers and returns the
// highest-scoring sections by query-word overlap, within the char budget.
func relevantSections(content, queryLower string, maxChars int) string {
	var sections []string
	var current []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") && len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = current[:0]
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, strings.Join(current, "\n"))
	}

	type scored struct {
		score   int
		index   int
		content string
	}
	queryWords := strings.Fields(queryLower)
	var hits []scored
	for i, sec := range sections {
		secLower := strings.ToLower(sec)
		score := 0
		for _, w := range queryWords {
			if strings.Contains(secLower, w) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{score: score, index: i, content: sec})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	var out []string
	total := 0
	for _, h := range hits {
		if total+len(h.content) >= maxChars {
			continue
		}
		out = append(out, h.content)
		total += len(h.content)
	}
	return strings.Join(out, "\n\n")
}

// relevantDocs scores documentation files by query-word overlap against the
// doc name and content, returning up to topN excerpts capped at excerptLen.
func (s *Store) relevantDocs(queryLower string, topN, excerptLen int) string {
	type scored struct {
		name    string
		score   int
		content string
	}
	queryWords := strings.Fields(queryLower)

	var hits []scored
	for name, content := range s.docs {
		contentLower := strings.ToLower(content)
		nameLower := strings.ToLower(name)
		score := 0
		for _, w := range queryWords {
			if len(w) < 3 {
				continue
			}
			if strings.Contains(nameLower, w) {
				score += 3 // name hits weigh more than body hits
			}
			if strings.Contains(contentLower, w) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{name: name, score: score, content: content})
		}
	}
	// Name tie-break keeps output deterministic across map iteration order.
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].name < hits[b].name
	})

	var parts []string
	for i, h := range hits {
		if i >= topN {
			break
		}
		excerpt := h.content
		if len(excerpt) > excerptLen {
			excerpt = excerpt[:excerptLen] + "..."
		}
		parts = append(parts, "### "+h.name+"\n"+excerpt)
	}
	return strings.Join(parts, "\n\n")
}
