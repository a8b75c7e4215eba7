package parse

import (
	"net/url"
	"strings"

	"jiratriage/internal/domain"
)

// FillLinks sets <baseURL>/browse/<KEY> on analyses without a link. Nothing
// happens when baseURL is empty; UNKNOWN keys never get a link.
func FillLinks(analyses []domain.Analysis, baseURL string) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return
	}
	for i := range analyses {
		a := &analyses[i]
		if a.Link != "" || a.TicketKey == "" || a.TicketKey == domain.UnknownTicketKey {
			continue
		}
		a.Link = baseURL + "/browse/" + url.PathEscape(a.TicketKey)
	}
}
