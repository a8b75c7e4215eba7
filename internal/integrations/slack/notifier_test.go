package slacknotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiratriage/internal/config"
	"jiratriage/internal/domain"
)

func TestFormatTokenCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1k"},
		{1049, "1k"},
		{1050, "1.1k"},
		{15420, "15.4k"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTokenCount(tt.in), "tokens=%d", tt.in)
	}
}

func TestReportComment(t *testing.T) {
	s := domain.RunSummary{
		Source: "export.pdf", Model: "gemini-2.5-pro",
		Tickets: 12, Chunks: 3, Analyses: 11, TokensIn: 9000, TokensOut: 1500,
	}
	got := reportComment(s)
	assert.Equal(t, "Jira triage finished: 12 tickets in 3 chunks, 11 analyses (source: export.pdf, model: gemini-2.5-pro, tokens used: 10.5k)", got)

	s.FailedChunks = 1
	assert.True(t, strings.HasSuffix(reportComment(s), "\n1 chunk(s) failed and were skipped."))
}

func TestNewNotifierDisabled(t *testing.T) {
	n := NewNotifier(config.Config{SlackBotToken: "xoxb"})
	assert.Nil(t, n)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.NotifyReport(context.Background(), domain.RunSummary{ReportPath: "missing.html"}))
}

func newMockSlack(t *testing.T, ok bool) (*httptest.Server, *uploadCalls) {
	t.Helper()
	var got uploadCalls
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/")
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "not_authed"})
			return
		}
		switch path {
		case "files.getUploadURLExternal":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":         true,
				"upload_url": server.URL + "/upload/F123",
				"file_id":    "F123",
			})
		case "files.completeUploadExternal":
			_ = r.ParseForm()
			got.channel = r.Form.Get("channel_id")
			got.comment = r.Form.Get("initial_comment")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":    true,
				"files": []map[string]any{{"id": "F123", "title": "Jira triage report"}},
			})
		default:
			got.uploads++
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	t.Cleanup(server.Close)
	return server, &got
}

type uploadCalls struct {
	channel string
	comment string
	uploads int
}

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jira_report.html")
	require.NoError(t, os.WriteFile(path, []byte("<html>report</html>"), 0o644))
	return path
}

func TestNotifyReportUploads(t *testing.T) {
	server, got := newMockSlack(t, true)
	n := NewNotifier(config.Config{SlackBotToken: "xoxb-test", ReportChannelID: "C42"},
		slack.OptionAPIURL(server.URL+"/api/"))
	require.True(t, n.Enabled())

	err := n.NotifyReport(context.Background(), domain.RunSummary{
		ID: "run-1", ReportPath: writeReport(t), Tickets: 2, Chunks: 1, Analyses: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "C42", got.channel)
	assert.Contains(t, got.comment, "2 tickets in 1 chunks")
	assert.Equal(t, 1, got.uploads)
}

func TestNotifyReportErrors(t *testing.T) {
	server, _ := newMockSlack(t, false)
	n := NewNotifier(config.Config{SlackBotToken: "xoxb-test", ReportChannelID: "C42"},
		slack.OptionAPIURL(server.URL+"/api/"))

	err := n.NotifyReport(context.Background(), domain.RunSummary{ReportPath: writeReport(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: upload report")

	err = n.NotifyReport(context.Background(), domain.RunSummary{ReportPath: filepath.Join(t.TempDir(), "nope.html")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: stat report")
}
