package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jira "github.com/andygrunwald/go-jira"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jiratriage/internal/config"
	"jiratriage/internal/domain"
)

var jiraSearchFields = []string{"summary", "status", "issuetype", "priority", "description"}

// JiraSource turns JQL search results into tickets, one per issue, rendered
// in the same shape as a block of an exported text file.
type JiraSource struct {
	client    *jira.Client
	pageSize  int
	maxIssues int
}

// NewJiraSource builds a basic-auth client. httpClient supplies the
// transport and timeout; nil means http.DefaultTransport without a timeout.
func NewJiraSource(cfg config.Config, httpClient *http.Client) (*JiraSource, error) {
	if !cfg.JiraConfigured() {
		return nil, eris.New("source: jira_base_url, jira_username and jira_api_token are required for JQL input")
	}
	tp := jira.BasicAuthTransport{
		Username: cfg.JiraUsername,
		Password: cfg.JiraAPIToken,
	}
	client := tp.Client()
	if httpClient != nil {
		tp.Transport = httpClient.Transport
		client = tp.Client()
		client.Timeout = httpClient.Timeout
	}
	jc, err := jira.NewClient(client, cfg.JiraBaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "source: create jira client")
	}
	return &JiraSource{
		client:    jc,
		pageSize:  cfg.JiraMaxResults,
		maxIssues: cfg.JiraMaxIssues,
	}, nil
}

// Fetch pages through the search until the result set or maxIssues is
// exhausted. Issue boundaries come from the search itself, so keys quoted
// inside a summary or description never start a ticket of their own.
func (s *JiraSource) Fetch(ctx context.Context, jql string) ([]domain.Ticket, error) {
	if strings.TrimSpace(jql) == "" {
		return nil, eris.New("source: empty JQL query")
	}

	var tickets []domain.Ticket
	startAt := 0
	for len(tickets) < s.maxIssues {
		pageSize := s.pageSize
		if remaining := s.maxIssues - len(tickets); remaining < pageSize {
			pageSize = remaining
		}
		issues, resp, err := s.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{
			StartAt:    startAt,
			MaxResults: pageSize,
			Fields:     jiraSearchFields,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "source: jira search startAt=%d", startAt)
		}
		for _, issue := range issues {
			tickets = append(tickets, domain.Ticket{
				Key:    issue.Key,
				Text:   strings.TrimSpace(renderIssue(issue)),
				Offset: len(tickets),
			})
		}
		zap.L().Debug("jira search page",
			zap.Int("start_at", startAt),
			zap.Int("returned", len(issues)),
		)
		if len(issues) == 0 {
			break
		}
		startAt += len(issues)
		if resp != nil && startAt >= resp.Total {
			break
		}
	}
	if len(tickets) > s.maxIssues {
		tickets = tickets[:s.maxIssues]
	}
	return tickets, nil
}

func renderIssue(issue jira.Issue) string {
	var b strings.Builder
	b.WriteString(issue.Key)
	b.WriteString("\n")
	f := issue.Fields
	if f == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "Summary: %s\n", strings.TrimSpace(f.Summary))
	if f.Status != nil {
		fmt.Fprintf(&b, "Status: %s\n", f.Status.Name)
	}
	if f.Type.Name != "" {
		fmt.Fprintf(&b, "Type: %s\n", f.Type.Name)
	}
	if f.Priority != nil {
		fmt.Fprintf(&b, "Priority: %s\n", f.Priority.Name)
	}
	if desc := strings.TrimSpace(f.Description); desc != "" {
		b.WriteString("Description:\n")
		b.WriteString(desc)
		b.WriteString("\n")
	}
	return b.String()
}
