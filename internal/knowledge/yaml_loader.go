package knowledge

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"supportbot/internal/domain"

	"gopkg.in/yaml.v3"
)

// yamlFAQFile is the shape of a supplemental FAQ YAML file. A file may hold
// a single entry or a list under "faqs".
type yamlFAQFile struct {
	FAQs []domain.FAQEntry `yaml:"faqs"`
}

// loadYAMLFAQs reads supplemental FAQ entries from faqs.d/*.yaml, appended
// after the JSON entries in file-name order so declaration order stays
// deterministic. Unparseable files are skipped with a warning.
func (s *Store) loadYAMLFAQs() {
	dir := filepath.Join(s.basePath, faqYAMLDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cannot read faqs.d directory", "dir", dir, "err", err)
		}
		return
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("cannot read FAQ file", "path", path, "err", err)
			continue
		}

		var f yamlFAQFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			s.logger.Warn("cannot parse FAQ file", "path", path, "err", err)
			continue
		}
		if len(f.FAQs) == 0 {
			// Fallback: file holds a single bare entry.
			var single domain.FAQEntry
			if err := yaml.Unmarshal(data, &single); err == nil && single.ID != "" {
				f.FAQs = []domain.FAQEntry{single}
			}
		}

		for _, faq := range f.FAQs {
			s.addFAQ(faq)
		}
		s.logger.Debug("loaded supplemental FAQs", "path", path, "count", len(f.FAQs))
	}
}
