package parse

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"jiratriage/internal/domain"
)

// CategoryRules are team overrides applied after parsing. A rule whose phrase
// appears in a ticket's source text forces the category; a status hint
// forces the status.
type CategoryRules struct {
	Rules       []CategoryRule `yaml:"rules"`
	StatusHints []StatusHint   `yaml:"status_hints"`
}

type CategoryRule struct {
	Phrase   string `yaml:"phrase"`
	Category string `yaml:"category"`
}

type StatusHint struct {
	Phrase string `yaml:"phrase"`
	Status string `yaml:"status"`
}

func LoadCategoryRules(path string) (*CategoryRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "parse: read category rules")
	}
	var r CategoryRules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "parse: parse category rules yaml")
	}
	for i, rule := range r.Rules {
		category := NormalizeCategory(rule.Category)
		if !IsKnownCategory(category) {
			return nil, eris.Errorf("parse: rule %d (%q) has unknown category %q", i, rule.Phrase, rule.Category)
		}
		r.Rules[i].Category = category
	}
	return &r, nil
}

// LoadCategoryRulesIfConfigured returns nil rules for an empty path.
func LoadCategoryRulesIfConfigured(path string) (*CategoryRules, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	return LoadCategoryRules(path)
}

func normalizeTextToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Apply rewrites analyses in place using the ticket text from chunk. The
// first matching rule and the first matching hint win. Analyses whose key is
// not in the chunk are left alone.
func (r *CategoryRules) Apply(analyses []domain.Analysis, chunk domain.Chunk) int {
	if r == nil {
		return 0
	}
	changed := 0
	for i := range analyses {
		text, ok := chunk.TicketText(analyses[i].TicketKey)
		if !ok {
			continue
		}
		desc := normalizeTextToken(text)

		for _, rule := range r.Rules {
			phrase := normalizeTextToken(rule.Phrase)
			if phrase != "" && strings.Contains(desc, phrase) {
				if analyses[i].Category != rule.Category {
					zap.L().Debug("category rule override",
						zap.String("ticket", analyses[i].TicketKey),
						zap.String("phrase", rule.Phrase),
						zap.String("from", analyses[i].Category),
						zap.String("to", rule.Category),
					)
					analyses[i].Category = rule.Category
					changed++
				}
				break
			}
		}

		for _, hint := range r.StatusHints {
			phrase := normalizeTextToken(hint.Phrase)
			if phrase != "" && strings.Contains(desc, phrase) {
				analyses[i].Status = domain.NormalizeStatus(hint.Status)
				break
			}
		}
	}
	return changed
}
