package parse

import (
	"strings"

	"jiratriage/internal/domain"
)

// NormalizeCategory maps free-form model labels onto the triage categories.
// Labels it cannot place are returned trimmed.
func NormalizeCategory(label string) string {
	raw := strings.TrimSpace(label)
	l := strings.ToLower(raw)
	l = strings.NewReplacer("_", " ", "-", " ", ".", "", "*", "").Replace(l)
	l = strings.Join(strings.Fields(l), " ")

	switch {
	case l == "":
		return ""
	case strings.Contains(l, "not a bug"), strings.Contains(l, "not bug"),
		strings.Contains(l, "notabug"), strings.Contains(l, "works as intended"),
		strings.Contains(l, "expected behavior"), strings.Contains(l, "feature request"),
		l == "invalid":
		return domain.CategoryNotABug
	case strings.Contains(l, "need") && (strings.Contains(l, "detail") || strings.Contains(l, "info")),
		strings.Contains(l, "more info"), strings.Contains(l, "insufficient"),
		strings.Contains(l, "unclear"):
		return domain.CategoryNeedsMoreDetails
	case strings.Contains(l, "solvable"), l == "bug", strings.Contains(l, "defect"):
		return domain.CategorySolvableBug
	default:
		return raw
	}
}

// IsKnownCategory reports whether category is one of domain.Categories.
func IsKnownCategory(category string) bool {
	for _, c := range domain.Categories {
		if c == category {
			return true
		}
	}
	return false
}
