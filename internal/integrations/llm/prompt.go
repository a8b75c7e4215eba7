package llm

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"jiratriage/internal/config"
)

const maxGuidanceChars = 8000

const triagePersona = `You are an expert QA analyst, senior iOS engineer, and Jira triage specialist.

Classify every ticket into exactly one category:
- Solvable Bug: a reproducible defect with enough detail to fix.
- Not a Bug: expected behavior, a feature request, a duplicate or a configuration issue.
- Needs More Details: the ticket lacks steps, environment or evidence to act on.

For each ticket extract:
- Ticket Key
- Status
- Category (Solvable Bug / Not a Bug / Needs More Details)
- Summary
- Reasoning
- Suggested Fix
- Missing Details
- Ticket Link
`

const htmlInstructions = `Output ONLY <tr> rows for an HTML table.
DO NOT include <html>, <body>, or <table> tags. Do not wrap the output in code fences.

Output per ticket:

<tr>
  <td>TicketKey</td>
  <td>Status</td>
  <td>Category</td>
  <td>Summary</td>
  <td>Reasoning</td>
  <td>Fix</td>
  <td>Missing</td>
  <td><a href="LINK">Open</a></td>
</tr>
`

const jsonInstructions = `Output ONLY a JSON array, one object per ticket, no prose and no code fences.
Each object has exactly these string keys:
"ticket_key", "status", "category", "summary", "reasoning", "suggested_fix", "missing_details", "link".
Use "" for anything you cannot determine. "category" must be one of the three categories above.
`

// SystemPrompt returns the triage instructions for the given response format
// with optional guidance appended.
func SystemPrompt(format, guidance string) string {
	var b strings.Builder
	b.WriteString(triagePersona)
	b.WriteString("\n")
	if format == config.FormatJSON {
		b.WriteString(jsonInstructions)
	} else {
		b.WriteString(htmlInstructions)
	}
	if g := strings.TrimSpace(guidance); g != "" {
		b.WriteString("\nTeam guidance:\n")
		b.WriteString(g)
		b.WriteString("\n")
	}
	return b.String()
}

func UserPrompt(chunkBody string) string {
	return "Now analyze this chunk:\n\n" + chunkBody
}

// LoadGuidance reads the optional guidance file. A missing or unreadable file
// only logs a warning.
func LoadGuidance(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		zap.L().Warn("llm guidance skipped", zap.String("path", path), zap.Error(err))
		return ""
	}
	text := strings.TrimSpace(string(data))
	if len(text) > maxGuidanceChars {
		text = text[:maxGuidanceChars] + "\n...(truncated)"
	}
	return text
}
