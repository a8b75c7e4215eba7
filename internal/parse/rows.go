// Package parse turns model replies into analyses and post-processes them.
package parse

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"jiratriage/internal/domain"
)

var (
	rowOpenRe  = regexp.MustCompile(`(?i)<tr`)
	rowCloseRe = regexp.MustCompile(`(?i)</tr\s*>`)
)

// IsolateRows returns the span from the first "<tr" to the last "</tr>",
// dropping preamble, code fences and trailing chatter. A reply cut off
// mid-row keeps everything from the first "<tr". No row yields "".
func IsolateRows(text string) string {
	open := rowOpenRe.FindStringIndex(text)
	if open == nil {
		return ""
	}
	start := open[0]
	closes := rowCloseRe.FindAllStringIndex(text[start:], -1)
	if len(closes) == 0 {
		return text[start:]
	}
	return text[start : start+closes[len(closes)-1][1]]
}

// ParseHTMLRows reads <tr> rows as table-body content. Cells map to the
// analysis fields in column order; header rows and rows without cells are
// skipped.
func ParseHTMLRows(text string) []domain.Analysis {
	span := IsolateRows(text)
	if span == "" {
		return nil
	}
	tbody := &html.Node{Type: html.ElementNode, Data: "tbody", DataAtom: atom.Tbody}
	nodes, err := html.ParseFragment(strings.NewReader(span), tbody)
	if err != nil {
		return nil
	}

	var out []domain.Analysis
	for _, n := range nodes {
		for _, tr := range findAll(n, atom.Tr) {
			if a, ok := rowToAnalysis(tr); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

func rowToAnalysis(tr *html.Node) (domain.Analysis, bool) {
	var cells []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Td {
			cells = append(cells, c)
		}
	}
	if len(cells) == 0 {
		return domain.Analysis{}, false
	}

	var a domain.Analysis
	fields := []*string{
		&a.TicketKey, &a.Status, &a.Category, &a.Summary,
		&a.Reasoning, &a.SuggestedFix, &a.MissingDetails, &a.Link,
	}
	for i, cell := range cells {
		if i >= len(fields) {
			break
		}
		if i == len(fields)-1 {
			a.Link = cellLink(cell)
			continue
		}
		*fields[i] = cellText(cell)
	}
	return withDefaults(a), true
}

// cellLink prefers the first anchor's href and falls back to a bare URL
// written as text.
func cellLink(cell *html.Node) string {
	for _, a := range findAll(cell, atom.A) {
		if href := strings.TrimSpace(attr(a, "href")); href != "" {
			return href
		}
	}
	text := cellText(cell)
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		return text
	}
	return ""
}

func cellText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findAll(n *html.Node, tag atom.Atom) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			results = append(results, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return results
}

func withDefaults(a domain.Analysis) domain.Analysis {
	a.TicketKey = strings.TrimSpace(a.TicketKey)
	if a.TicketKey == "" {
		a.TicketKey = domain.UnknownTicketKey
	}
	a.Category = NormalizeCategory(a.Category)
	if a.Category == "" {
		a.Category = domain.CategoryNeedsMoreDetails
	}
	a.Link = placeholderLink(a.Link)
	return a
}

// placeholderLink clears links the model copied verbatim from the prompt.
func placeholderLink(link string) string {
	switch strings.ToUpper(strings.TrimSpace(link)) {
	case "", "LINK", "#", "N/A":
		return ""
	}
	return strings.TrimSpace(link)
}
