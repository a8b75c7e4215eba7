// Package report renders triage results as an HTML page and a JSONL sidecar.
package report

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"jiratriage/internal/domain"
)

const pageTemplate = `<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
table { border-collapse: collapse; width: 100%; }
td, th { border: 1px solid #ccc; padding: 8px; }
tr:nth-child(even) { background: #f7f7f7; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Total}} tickets analyzed{{range .Counts}} | {{.Category}}: {{.Count}}{{end}}{{if .FailedChunks}} | failed chunks: {{.FailedChunks}}{{end}}</p>
<table>
<tr>
  <th>Ticket</th>
  <th>Status</th>
  <th>Category</th>
  <th>Summary</th>
  <th>Reasoning</th>
  <th>Fix</th>
  <th>Missing Details</th>
  <th>Link</th>
</tr>
{{- range .Rows}}
<tr>
  <td>{{.TicketKey}}</td>
  <td>{{.Status}}</td>
  <td>{{.Category}}</td>
  <td>{{.Summary}}</td>
  <td>{{.Reasoning}}</td>
  <td>{{.SuggestedFix}}</td>
  <td>{{.MissingDetails}}</td>
  <td>{{if .Link}}<a href="{{.Link}}">Open</a>{{end}}</td>
</tr>
{{- end}}
</table>
</body>
</html>
`

var page = template.Must(template.New("report").Parse(pageTemplate))

type CategoryCount struct {
	Category string
	Count    int
}

// CategoryCounts returns the known categories in report order, each present
// even at zero, followed by any other labels alphabetically.
func CategoryCounts(analyses []domain.Analysis) []CategoryCount {
	byCategory := make(map[string]int)
	for _, a := range analyses {
		byCategory[a.Category]++
	}

	out := make([]CategoryCount, 0, len(byCategory)+len(domain.Categories))
	for _, c := range domain.Categories {
		out = append(out, CategoryCount{Category: c, Count: byCategory[c]})
		delete(byCategory, c)
	}
	var others []string
	for c := range byCategory {
		others = append(others, c)
	}
	sort.Strings(others)
	for _, c := range others {
		out = append(out, CategoryCount{Category: c, Count: byCategory[c]})
	}
	return out
}

// RenderHTML builds the full report page. Every model-provided value is
// escaped; links with unsafe schemes are neutralised by html/template.
func RenderHTML(title string, analyses []domain.Analysis, summary domain.RunSummary) (string, error) {
	if title == "" {
		title = "Jira Bug Analysis Report"
	}
	data := struct {
		Title        string
		Total        int
		Counts       []CategoryCount
		FailedChunks int
		Rows         []domain.Analysis
	}{
		Title:        title,
		Total:        len(analyses),
		Counts:       CategoryCounts(analyses),
		FailedChunks: summary.FailedChunks,
		Rows:         analyses,
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return "", eris.Wrap(err, "report: render html")
	}
	return buf.String(), nil
}

// WriteHTML writes the page, creating parent directories as needed.
func WriteHTML(path, html string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "report: create dir %s", dir)
		}
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}
