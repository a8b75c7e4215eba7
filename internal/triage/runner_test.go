package triage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiratriage/internal/config"
	"jiratriage/internal/domain"
	"jiratriage/internal/integrations/llm"
	"jiratriage/internal/parse"
	"jiratriage/internal/segment"
)

var promptKey = regexp.MustCompile(`[A-Z]{2,10}-\d+`)

type fakeProvider struct {
	mu       sync.Mutex
	reply    func(keys []string) (string, error)
	delay    func(keys []string) time.Duration
	prompts  []llm.Request
	inFlight int
	maxSeen  int
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-1" }

func (f *fakeProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	keys := promptKey.FindAllString(req.UserPrompt, -1)

	f.mu.Lock()
	f.prompts = append(f.prompts, req)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(keys)):
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	text, err := f.reply(keys)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: text, Usage: llm.Usage{InputTokens: 100, OutputTokens: 10}}, nil
}

func htmlRows(keys []string) (string, error) {
	var b strings.Builder
	b.WriteString("Here are the rows:\n```html\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>Open</td><td>Solvable Bug</td><td>about %s</td><td>r</td><td>f</td><td></td><td><a href=\"LINK\">Open</a></td></tr>\n", k, k)
	}
	b.WriteString("```\n")
	return b.String(), nil
}

type fakeStore struct {
	runs     []domain.RunSummary
	analyses [][]domain.Analysis
	err      error
}

func (s *fakeStore) SaveRun(run domain.RunSummary, analyses []domain.Analysis) error {
	s.runs = append(s.runs, run)
	s.analyses = append(s.analyses, analyses)
	return s.err
}

type fakeNotifier struct {
	summaries []domain.RunSummary
	err       error
}

func (n *fakeNotifier) NotifyReport(_ context.Context, s domain.RunSummary) error {
	n.summaries = append(n.summaries, s)
	return n.err
}

type fakeJira struct {
	tickets []domain.Ticket
	jql     string
}

func (j *fakeJira) Fetch(_ context.Context, jql string) ([]domain.Ticket, error) {
	j.jql = jql
	return j.tickets, nil
}

func writeDump(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Exported from Jira\n\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "IOS-%d\nSummary: issue number %d\n\n", i, i)
	}
	path := filepath.Join(t.TempDir(), "dump.txt")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func newRunner(t *testing.T, p llm.Provider) *Runner {
	t.Helper()
	seg, err := segment.New(config.DefaultTicketKeyPattern, false)
	require.NoError(t, err)
	dir := t.TempDir()
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Runner{
		Cfg: config.Config{
			ResponseFormat:     config.FormatHTML,
			MaxTicketsPerChunk: 3,
			LLMConcurrency:     1,
			LLMMaxTokens:       1024,
			ReportPath:         filepath.Join(dir, "out", "jira_report.html"),
			ReportTitle:        "Test Report",
			JiraBaseURL:        "https://acme.atlassian.net",
			TicketKeyPattern:   config.DefaultTicketKeyPattern,
		},
		Segmenter: seg,
		Provider:  p,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
		NewID: func() string { return "run-test" },
	}
}

func keysOf(analyses []domain.Analysis) []string {
	keys := make([]string, 0, len(analyses))
	for _, a := range analyses {
		keys = append(keys, a.TicketKey)
	}
	return keys
}

func TestRunHTMLPipeline(t *testing.T) {
	p := &fakeProvider{reply: func(keys []string) (string, error) {
		switch {
		case contains(keys, "IOS-4"):
			return "", errors.New("quota exceeded")
		case contains(keys, "IOS-7"):
			return "I'm sorry, I cannot help with that.", nil
		}
		return htmlRows(keys)
	}}
	r := newRunner(t, p)
	r.Cfg.JSONLPath = filepath.Join(t.TempDir(), "analyses.jsonl")
	r.Rules = &parse.CategoryRules{Rules: []parse.CategoryRule{{Phrase: "issue number 2", Category: domain.CategoryNotABug}}}
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	r.Store = store
	r.Notifier = notifier

	res, err := r.Run(context.Background(), Input{Path: writeDump(t, 8)})
	require.NoError(t, err)

	assert.Equal(t, []string{"IOS-1", "IOS-2", "IOS-3"}, keysOf(res.Analyses))
	assert.Equal(t, domain.CategoryNotABug, res.Analyses[1].Category)
	assert.Equal(t, "https://acme.atlassian.net/browse/IOS-1", res.Analyses[0].Link)
	assert.Equal(t, 0, res.Analyses[0].Chunk)

	s := res.Summary
	assert.Equal(t, "run-test", s.ID)
	assert.Equal(t, 8, s.Tickets)
	assert.Equal(t, 3, s.Chunks)
	assert.Equal(t, 1, s.FailedChunks)
	assert.Equal(t, 3, s.Analyses)
	assert.EqualValues(t, 200, s.TokensIn)
	assert.EqualValues(t, 20, s.TokensOut)
	assert.Equal(t, "fake", s.Provider)
	assert.True(t, s.FinishedAt.After(s.StartedAt))

	require.Len(t, p.prompts, 3)
	assert.True(t, strings.HasPrefix(p.prompts[0].UserPrompt, "Now analyze this chunk:\n\nIOS-1"))
	assert.Contains(t, p.prompts[0].UserPrompt, segment.ChunkSeparator+"IOS-2")
	assert.Contains(t, p.prompts[0].SystemPrompt, "<tr>")
	assert.Equal(t, 1024, p.prompts[0].MaxTokens)

	html, err := os.ReadFile(r.Cfg.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>Test Report</title>")
	assert.Contains(t, string(html), "about IOS-3")
	assert.Contains(t, string(html), "failed chunks: 1")

	jsonl, err := os.ReadFile(r.Cfg.JSONLPath)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(jsonl), "\n"))
	assert.Contains(t, string(jsonl), `"run_id":"run-test"`)

	require.Len(t, store.runs, 1)
	assert.Len(t, store.analyses[0], 3)
	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, s, notifier.summaries[0])
}

func TestRunJSONFormatSkipsUnparseableChunk(t *testing.T) {
	p := &fakeProvider{reply: func(keys []string) (string, error) {
		if contains(keys, "IOS-1") {
			return "```json\n[{\"ticket_key\": \"IOS-1\", \"category\": \"needs more info\"}, {\"ticket_key\": \"IOS-2\"}]\n```", nil
		}
		return `[{"ticket_key": "IOS-3", oops`, nil
	}}
	r := newRunner(t, p)
	r.Cfg.ResponseFormat = config.FormatJSON
	r.Cfg.MaxTicketsPerChunk = 2

	res, err := r.Run(context.Background(), Input{Path: writeDump(t, 3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"IOS-1", "IOS-2"}, keysOf(res.Analyses))
	assert.Equal(t, domain.CategoryNeedsMoreDetails, res.Analyses[0].Category)
	assert.Equal(t, 1, res.Summary.FailedChunks)
	assert.Contains(t, p.prompts[0].SystemPrompt, `"ticket_key"`)
}

func TestRunNoTicketsWritesEmptyReport(t *testing.T) {
	p := &fakeProvider{reply: htmlRows}
	r := newRunner(t, p)
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("nothing that looks like a key here"), 0o644))

	res, err := r.Run(context.Background(), Input{Path: path})
	require.NoError(t, err)
	assert.Zero(t, res.Summary.Tickets)
	assert.Zero(t, res.Summary.Chunks)
	assert.Empty(t, p.prompts)

	html, err := os.ReadFile(r.Cfg.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "0 tickets analyzed")
}

func TestRunConcurrentKeepsChunkOrder(t *testing.T) {
	p := &fakeProvider{
		reply: htmlRows,
		delay: func(keys []string) time.Duration {
			// Earlier chunks finish later.
			if contains(keys, "IOS-1") {
				return 60 * time.Millisecond
			}
			if contains(keys, "IOS-3") {
				return 30 * time.Millisecond
			}
			return 5 * time.Millisecond
		},
	}
	r := newRunner(t, p)
	r.Cfg.MaxTicketsPerChunk = 2
	r.Cfg.LLMConcurrency = 3

	res, err := r.Run(context.Background(), Input{Path: writeDump(t, 10)})
	require.NoError(t, err)
	assert.Equal(t, []string{"IOS-1", "IOS-2", "IOS-3", "IOS-4", "IOS-5", "IOS-6", "IOS-7", "IOS-8", "IOS-9", "IOS-10"}, keysOf(res.Analyses))
	for i, a := range res.Analyses {
		assert.Equal(t, i/2, a.Chunk)
	}
	assert.LessOrEqual(t, p.maxSeen, 3)
	assert.Len(t, p.prompts, 5)
}

func TestRunSequentialByDefault(t *testing.T) {
	p := &fakeProvider{reply: htmlRows, delay: func([]string) time.Duration { return time.Millisecond }}
	r := newRunner(t, p)
	r.Cfg.MaxTicketsPerChunk = 1

	_, err := r.Run(context.Background(), Input{Path: writeDump(t, 4)})
	require.NoError(t, err)
	assert.Equal(t, 1, p.maxSeen)
	for i, req := range p.prompts {
		assert.Contains(t, req.UserPrompt, fmt.Sprintf("IOS-%d\n", i+1))
	}
}

func TestRunSurvivesMalformedReplies(t *testing.T) {
	garbage := []string{
		"",
		"<tr>",
		"<tr><td>",
		"</tr></tr><tr>",
		"```\n```",
		"<table><tr><td>IOS-1</td></table>",
		"\x00\xff\xfe<tr><td>\xff</td></tr>",
		strings.Repeat("<tr><td>x", 200),
	}
	for _, format := range []string{config.FormatHTML, config.FormatJSON} {
		for _, reply := range garbage {
			p := &fakeProvider{reply: func([]string) (string, error) { return reply, nil }}
			r := newRunner(t, p)
			r.Cfg.ResponseFormat = format
			assert.NotPanics(t, func() {
				_, err := r.Run(context.Background(), Input{Path: writeDump(t, 2)})
				assert.NoError(t, err)
			}, "format=%s reply=%q", format, reply)
		}
	}
}

func TestRunOptionalOutputFailuresAreNotFatal(t *testing.T) {
	r := newRunner(t, &fakeProvider{reply: htmlRows})
	r.Store = &fakeStore{err: errors.New("disk full")}
	r.Notifier = &fakeNotifier{err: errors.New("not_authed")}

	res, err := r.Run(context.Background(), Input{Path: writeDump(t, 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Analyses)
}

func TestRunFromJQL(t *testing.T) {
	jira := &fakeJira{tickets: []domain.Ticket{
		{Key: "WEB-1", Text: "WEB-1\nSummary: broken"},
		{Key: "WEB-2", Text: "WEB-2\nSummary: slow", Offset: 1},
	}}
	p := &fakeProvider{reply: htmlRows}
	r := newRunner(t, p)
	r.Jira = jira

	res, err := r.Run(context.Background(), Input{JQL: "project = WEB"})
	require.NoError(t, err)
	assert.Equal(t, "project = WEB", jira.jql)
	assert.Equal(t, "jql:project = WEB", res.Summary.Source)
	assert.Equal(t, []string{"WEB-1", "WEB-2"}, keysOf(res.Analyses))
}

func TestDryRunFromJQLKeepsIssueBoundaries(t *testing.T) {
	body := "WEB-1\nSummary: Blocked by WEB-9 rollout\nDescription:\nWEB-9 must ship first.\nCrash persists after restart."
	jira := &fakeJira{tickets: []domain.Ticket{
		{Key: "WEB-1", Text: body},
		{Key: "WEB-2", Text: "WEB-2\nSummary: slow", Offset: 1},
	}}
	r := newRunner(t, &fakeProvider{reply: htmlRows})
	r.Jira = jira

	plan, err := r.DryRun(context.Background(), Input{JQL: "project = WEB"})
	require.NoError(t, err)
	require.Len(t, plan.Tickets, 2)
	assert.Equal(t, "WEB-1", plan.Tickets[0].Key)
	assert.Equal(t, body, plan.Tickets[0].Text)
	require.Len(t, plan.Chunks, 1)
	assert.Equal(t, []string{"WEB-1", "WEB-2"}, plan.Chunks[0].Keys())

	text, ok := plan.Chunks[0].TicketText("WEB-1")
	require.True(t, ok)
	assert.Contains(t, text, "Crash persists after restart.")
}

func TestRunInputValidation(t *testing.T) {
	r := newRunner(t, &fakeProvider{reply: htmlRows})

	_, err := r.Run(context.Background(), Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input")

	_, err = r.Run(context.Background(), Input{Path: "a.txt", JQL: "project = X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")

	_, err = r.Run(context.Background(), Input{JQL: "project = X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jira_base_url")

	_, err = r.Run(context.Background(), Input{Path: filepath.Join(t.TempDir(), "missing.txt")})
	require.Error(t, err)

	r.Provider = nil
	_, err = r.Run(context.Background(), Input{Path: "a.txt"})
	require.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	p := &fakeProvider{reply: htmlRows, delay: func([]string) time.Duration { return time.Second }}
	r := newRunner(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, Input{Path: writeDump(t, 4)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
	_, statErr := os.Stat(r.Cfg.ReportPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDryRun(t *testing.T) {
	r := newRunner(t, nil)
	plan, err := r.DryRun(context.Background(), Input{Path: writeDump(t, 7)})
	require.NoError(t, err)
	assert.Len(t, plan.Tickets, 7)
	require.Len(t, plan.Chunks, 3)
	assert.Len(t, plan.Chunks[2].Tickets, 1)
	assert.Equal(t, []string{"IOS-1", "IOS-2", "IOS-3"}, plan.Chunks[0].Keys())
}

func TestMissingKeys(t *testing.T) {
	chunk := domain.Chunk{Tickets: []domain.Ticket{{Key: "A-1"}, {Key: "A-2"}, {Key: "A-3"}}}
	got := missingKeys(chunk, []domain.Analysis{{TicketKey: "a-1"}, {TicketKey: "A-3"}})
	assert.Equal(t, []string{"A-2"}, got)
}

func contains(keys []string, want string) bool {
	for _, k := range keys {
		if k == want {
			return true
		}
	}
	return false
}
