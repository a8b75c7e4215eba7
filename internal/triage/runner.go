// Package triage runs the pipeline: acquire the dump, split it into tickets,
// send chunks to the model, parse the replies and write the outputs.
package triage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jiratriage/internal/config"
	"jiratriage/internal/domain"
	"jiratriage/internal/integrations/llm"
	"jiratriage/internal/parse"
	"jiratriage/internal/report"
	"jiratriage/internal/segment"
	"jiratriage/internal/source"
)

// JiraFetcher returns one ticket per issue matched by a JQL search.
type JiraFetcher interface {
	Fetch(ctx context.Context, jql string) ([]domain.Ticket, error)
}

type History interface {
	SaveRun(run domain.RunSummary, analyses []domain.Analysis) error
}

type Notifier interface {
	NotifyReport(ctx context.Context, summary domain.RunSummary) error
}

// Input names exactly one source: a file path or a JQL query.
type Input struct {
	Path string
	JQL  string
}

type Result struct {
	Summary  domain.RunSummary
	Analyses []domain.Analysis
}

// Plan is what a run would send, without calling the model.
type Plan struct {
	Source  string
	Tickets []domain.Ticket
	Chunks  []domain.Chunk
}

type Runner struct {
	Cfg       config.Config
	Extractor source.Extractor
	Jira      JiraFetcher
	Segmenter *segment.Segmenter
	Provider  llm.Provider
	Rules     *parse.CategoryRules
	Guidance  string

	// Optional outputs; nil disables them.
	Store    History
	Notifier Notifier

	Now   func() time.Time
	NewID func() string
}

type chunkResult struct {
	analyses []domain.Analysis
	usage    llm.Usage
	failed   bool
}

func (r *Runner) Run(ctx context.Context, in Input) (Result, error) {
	if r.Provider == nil {
		return Result{}, eris.New("triage: no llm provider configured")
	}
	summary := domain.RunSummary{
		ID:         r.newID(),
		Format:     r.Cfg.ResponseFormat,
		Provider:   r.Provider.Name(),
		Model:      r.Provider.Model(),
		ReportPath: r.Cfg.ReportPath,
		StartedAt:  r.now(),
	}

	plan, err := r.DryRun(ctx, in)
	if err != nil {
		return Result{}, err
	}
	summary.Source = plan.Source
	summary.Tickets = len(plan.Tickets)
	summary.Chunks = len(plan.Chunks)
	zap.L().Info("triage start",
		zap.String("run_id", summary.ID),
		zap.String("source", plan.Source),
		zap.Int("tickets", summary.Tickets),
		zap.Int("chunks", summary.Chunks),
		zap.String("provider", summary.Provider),
		zap.String("model", summary.Model),
	)
	if len(plan.Tickets) == 0 {
		zap.L().Warn("triage found no tickets; writing an empty report", zap.String("pattern", r.Cfg.TicketKeyPattern))
	}

	results, err := r.processChunks(ctx, plan.Chunks)
	if err != nil {
		return Result{}, err
	}

	var analyses []domain.Analysis
	var usage llm.Usage
	for _, res := range results {
		analyses = append(analyses, res.analyses...)
		usage.Add(res.usage)
		if res.failed {
			summary.FailedChunks++
		}
	}
	summary.Analyses = len(analyses)
	summary.TokensIn = usage.InputTokens
	summary.TokensOut = usage.OutputTokens

	html, err := report.RenderHTML(r.Cfg.ReportTitle, analyses, summary)
	if err != nil {
		return Result{}, err
	}
	if err := report.WriteHTML(r.Cfg.ReportPath, html); err != nil {
		return Result{}, err
	}
	if path := strings.TrimSpace(r.Cfg.JSONLPath); path != "" {
		n, err := report.WriteJSONLFile(path, summary.ID, analyses)
		if err != nil {
			return Result{}, err
		}
		zap.L().Info("triage jsonl written", zap.String("path", path), zap.Int("records", n))
	}
	summary.FinishedAt = r.now()

	if r.Store != nil {
		if err := r.Store.SaveRun(summary, analyses); err != nil {
			zap.L().Warn("triage history not saved", zap.String("run_id", summary.ID), zap.Error(err))
		}
	}
	if r.Notifier != nil {
		if err := r.Notifier.NotifyReport(ctx, summary); err != nil {
			zap.L().Warn("triage slack upload failed", zap.String("run_id", summary.ID), zap.Error(err))
		}
	}

	zap.L().Info("triage done",
		zap.String("run_id", summary.ID),
		zap.Int("analyses", summary.Analyses),
		zap.Int("failed_chunks", summary.FailedChunks),
		zap.Int64("tokens", summary.TotalTokens()),
		zap.String("report", summary.ReportPath),
		zap.Duration("elapsed", summary.Duration()),
	)
	return Result{Summary: summary, Analyses: analyses}, nil
}

// DryRun acquires and segments the input without calling the model.
// Dumps are split with the segmenter; JQL results are already one ticket
// per issue.
func (r *Runner) DryRun(ctx context.Context, in Input) (Plan, error) {
	tickets, src, err := r.acquire(ctx, in)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Source:  src,
		Tickets: tickets,
		Chunks:  segment.Chunk(tickets, r.Cfg.MaxTicketsPerChunk),
	}, nil
}

func (r *Runner) acquire(ctx context.Context, in Input) ([]domain.Ticket, string, error) {
	path := strings.TrimSpace(in.Path)
	jql := strings.TrimSpace(in.JQL)
	switch {
	case path != "" && jql != "":
		return nil, "", eris.New("triage: give either a file or a JQL query, not both")
	case jql != "":
		if r.Jira == nil {
			return nil, "", eris.New("triage: JQL input needs jira_base_url, jira_username and jira_api_token")
		}
		tickets, err := r.Jira.Fetch(ctx, jql)
		if err != nil {
			return nil, "", err
		}
		zap.L().Info("jira issues fetched", zap.Int("issues", len(tickets)))
		return tickets, "jql:" + jql, nil
	case path != "":
		if r.Segmenter == nil {
			return nil, "", eris.New("triage: no segmenter configured")
		}
		text, err := source.ReadDump(ctx, r.Extractor, path)
		if err != nil {
			return nil, "", err
		}
		return r.Segmenter.Split(text), path, nil
	default:
		return nil, "", eris.New("triage: no input file or JQL query")
	}
}

// processChunks calls the model for every chunk with at most
// llm_concurrency calls in flight. Results keep chunk order.
func (r *Runner) processChunks(ctx context.Context, chunks []domain.Chunk) ([]chunkResult, error) {
	systemPrompt := llm.SystemPrompt(r.Cfg.ResponseFormat, r.Guidance)
	results := make([]chunkResult, len(chunks))

	limit := r.Cfg.LLMConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			zap.L().Info("triage chunk",
				zap.Int("chunk", i+1),
				zap.Int("of", len(chunks)),
				zap.Int("tickets", len(chunk.Tickets)),
			)
			results[i] = r.processChunk(gctx, chunk, systemPrompt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "triage: cancelled")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "triage: cancelled")
	}
	return results, nil
}

func (r *Runner) processChunk(ctx context.Context, chunk domain.Chunk, systemPrompt string) chunkResult {
	resp, err := r.Provider.Generate(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   llm.UserPrompt(chunk.Body),
		MaxTokens:    r.Cfg.LLMMaxTokens,
	})
	if err != nil {
		zap.L().Error("triage chunk failed", zap.Int("chunk", chunk.Index), zap.Error(err))
		return chunkResult{usage: resp.Usage, failed: true}
	}

	var analyses []domain.Analysis
	if r.Cfg.ResponseFormat == config.FormatJSON {
		analyses, err = parse.ParseJSONReply(resp.Text)
		if err != nil {
			zap.L().Error("triage chunk failed",
				zap.Int("chunk", chunk.Index),
				zap.String("stage", "parse"),
				zap.Error(err),
			)
			return chunkResult{usage: resp.Usage, failed: true}
		}
	} else {
		analyses = parse.ParseHTMLRows(resp.Text)
	}

	if len(analyses) == 0 {
		zap.L().Warn("triage chunk returned no rows", zap.Int("chunk", chunk.Index), zap.Strings("keys", chunk.Keys()))
	}
	for i := range analyses {
		analyses[i].Chunk = chunk.Index
	}
	r.Rules.Apply(analyses, chunk)
	parse.FillLinks(analyses, r.Cfg.JiraBaseURL)

	if missing := missingKeys(chunk, analyses); len(missing) > 0 && len(analyses) > 0 {
		zap.L().Warn("triage chunk skipped tickets", zap.Int("chunk", chunk.Index), zap.Strings("keys", missing))
	}
	zap.L().Info("triage chunk done",
		zap.Int("chunk", chunk.Index),
		zap.Int("rows", len(analyses)),
		zap.Int64("tokens", resp.Usage.TotalTokens()),
	)
	return chunkResult{analyses: analyses, usage: resp.Usage}
}

// missingKeys lists chunk tickets the reply has no analysis for.
func missingKeys(chunk domain.Chunk, analyses []domain.Analysis) []string {
	seen := make(map[string]bool, len(analyses))
	for _, a := range analyses {
		seen[strings.ToUpper(a.TicketKey)] = true
	}
	var missing []string
	for _, key := range chunk.Keys() {
		if !seen[strings.ToUpper(key)] {
			missing = append(missing, key)
		}
	}
	return missing
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}
