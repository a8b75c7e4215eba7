// Package slacknotify posts finished reports to a Slack channel.
package slacknotify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"jiratriage/internal/config"
	"jiratriage/internal/domain"
	"jiratriage/internal/httpx"
)

// Notifier uploads the HTML report with a one-line run summary.
type Notifier struct {
	api       *slack.Client
	channelID string
}

// NewNotifier returns nil when the bot token or channel is missing; a nil
// Notifier is a no-op.
func NewNotifier(cfg config.Config, opts ...slack.Option) *Notifier {
	if !cfg.SlackConfigured() {
		return nil
	}
	opts = append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, opts...)
	return &Notifier{
		api:       slack.New(cfg.SlackBotToken, opts...),
		channelID: cfg.ReportChannelID,
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.api != nil && n.channelID != ""
}

// NotifyReport uploads summary.ReportPath to the configured channel.
func (n *Notifier) NotifyReport(ctx context.Context, summary domain.RunSummary) error {
	if !n.Enabled() {
		return nil
	}
	fi, err := os.Stat(summary.ReportPath)
	if err != nil {
		return eris.Wrapf(err, "slack: stat report %s", summary.ReportPath)
	}

	_, err = n.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:           summary.ReportPath,
		FileSize:       int(fi.Size()),
		Filename:       filepath.Base(summary.ReportPath),
		Channel:        n.channelID,
		Title:          "Jira triage report",
		InitialComment: reportComment(summary),
	})
	if err != nil {
		return eris.Wrap(err, "slack: upload report")
	}
	zap.L().Info("slack report uploaded",
		zap.String("channel", n.channelID),
		zap.String("run_id", summary.ID),
	)
	return nil
}

func reportComment(s domain.RunSummary) string {
	msg := fmt.Sprintf("Jira triage finished: %d tickets in %d chunks, %d analyses (source: %s, model: %s, tokens used: %s)",
		s.Tickets, s.Chunks, s.Analyses, s.Source, s.Model, formatTokenCount(s.TotalTokens()))
	if s.FailedChunks > 0 {
		msg += fmt.Sprintf("\n%d chunk(s) failed and were skipped.", s.FailedChunks)
	}
	return msg
}

func formatTokenCount(tokens int64) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	}
	rounded := (tokens + 50) / 100
	whole := rounded / 10
	decimal := rounded % 10
	if decimal == 0 {
		return fmt.Sprintf("%dk", whole)
	}
	return fmt.Sprintf("%d.%dk", whole, decimal)
}
