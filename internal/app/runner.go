package app

import (
	"context"

	"jiratriage/internal/config"
	"jiratriage/internal/httpx"
	"jiratriage/internal/integrations/llm"
	slacknotify "jiratriage/internal/integrations/slack"
	"jiratriage/internal/parse"
	"jiratriage/internal/segment"
	"jiratriage/internal/source"
	"jiratriage/internal/storage/sqlite"
	"jiratriage/internal/triage"
)

// buildRunner assembles a Runner from cfg. Without withModel only input
// acquisition and segmentation are wired, which is all a dry run needs. The
// returned cleanup closes the history database.
func buildRunner(ctx context.Context, cfg config.Config, withModel bool) (*triage.Runner, func(), error) {
	cleanup := func() {}

	seg, err := segment.New(cfg.TicketKeyPattern, cfg.LineStartOnly)
	if err != nil {
		return nil, cleanup, err
	}
	extractor, err := source.NewExtractor(cfg)
	if err != nil {
		return nil, cleanup, err
	}
	r := &triage.Runner{
		Cfg:       cfg,
		Extractor: extractor,
		Segmenter: seg,
	}
	if cfg.JiraConfigured() {
		js, err := source.NewJiraSource(cfg, httpx.ExternalHTTPClient())
		if err != nil {
			return nil, cleanup, err
		}
		r.Jira = js
	}
	if !withModel {
		return r, cleanup, nil
	}

	provider, err := llm.NewProvider(ctx, cfg)
	if err != nil {
		return nil, cleanup, err
	}
	r.Provider = provider
	r.Guidance = llm.LoadGuidance(cfg.LLMGuidePath)

	rules, err := parse.LoadCategoryRulesIfConfigured(cfg.CategoryRulesPath)
	if err != nil {
		return nil, cleanup, err
	}
	r.Rules = rules

	if cfg.DBPath != "" {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, cleanup, err
		}
		r.Store = store
		cleanup = func() { _ = store.Close() }
	}
	if n := slacknotify.NewNotifier(cfg); n != nil {
		r.Notifier = n
	}
	return r, cleanup, nil
}
