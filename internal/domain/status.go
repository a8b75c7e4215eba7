package domain

import "strings"

// NormalizeStatus folds the many spellings of Jira workflow states into a
// small set. Unrecognised values are returned trimmed.
func NormalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "done", "closed", "resolved", "fixed", "completed", "released":
		return "Done"
	case "in test", "in testing", "qa", "in qa", "testing", "ready for qa":
		return "In Testing"
	case "in progress", "in development", "in dev", "wip", "progress", "in review", "code review":
		return "In Progress"
	case "open", "to do", "todo", "backlog", "new", "reopened", "selected for development":
		return "Open"
	default:
		return strings.TrimSpace(status)
	}
}
