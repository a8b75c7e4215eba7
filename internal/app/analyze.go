package app

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"jiratriage/internal/config"
	"jiratriage/internal/triage"
)

type analyzeFlags struct {
	jql         string
	format      string
	out         string
	jsonl       string
	chunkSize   int
	provider    string
	model       string
	concurrency int
}

func newAnalyzeCmd(st *rootState) *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze [FILE]",
		Short: "Analyze a ticket dump and write the HTML report",
		Long: "Reads FILE (.pdf goes through the PDF extractor, anything else is read as text) " +
			"or runs --jql (default: jira_jql from the config) against Jira, then categorizes " +
			"every ticket with the configured model.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := triage.Input{JQL: f.jql}
			if len(args) == 1 {
				in.Path = args[0]
			}
			// jira_jql is the query when neither FILE nor --jql is given.
			if in.Path == "" && !cmd.Flags().Changed("jql") {
				in.JQL = st.cfg.JiraJQL
			}
			if (in.Path == "") == (in.JQL == "") {
				return eris.New("analyze: give exactly one of FILE or --jql")
			}

			cfg, err := applyAnalyzeFlags(cmd, st.cfg, f)
			if err != nil {
				return err
			}

			runner, cleanup, err := buildRunner(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := runner.Run(cmd.Context(), in)
			if err != nil {
				return eris.Wrap(err, "analyze")
			}
			s := res.Summary
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", s.ReportPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Tickets: %d  Chunks: %d  Failed chunks: %d  Analyses: %d  Tokens: %d\n",
				s.Tickets, s.Chunks, s.FailedChunks, s.Analyses, s.TotalTokens())
			if cfg.JSONLPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "JSONL written to %s\n", cfg.JSONLPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.jql, "jql", "", "pull tickets from Jira with this JQL query instead of a file")
	cmd.Flags().StringVar(&f.format, "format", "", "model response format: html or json")
	cmd.Flags().StringVar(&f.out, "out", "", "HTML report path")
	cmd.Flags().StringVar(&f.jsonl, "jsonl", "", "also write one JSON object per analysis to this path")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", 0, "tickets per model call")
	cmd.Flags().StringVar(&f.provider, "provider", "", "llm provider: gemini, anthropic or openai")
	cmd.Flags().StringVar(&f.model, "model", "", "model name for the provider")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "model calls in flight")
	return cmd
}

// applyAnalyzeFlags overlays the flags the user actually set and validates
// the result.
func applyAnalyzeFlags(cmd *cobra.Command, cfg config.Config, f analyzeFlags) (config.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.ResponseFormat = f.format
	}
	if flags.Changed("out") {
		cfg.ReportPath = f.out
	}
	if flags.Changed("jsonl") {
		cfg.JSONLPath = f.jsonl
	}
	if flags.Changed("chunk-size") {
		cfg.MaxTicketsPerChunk = f.chunkSize
	}
	if flags.Changed("provider") {
		cfg.LLMProvider = f.provider
	}
	if flags.Changed("model") {
		cfg.LLMModel = f.model
	}
	if flags.Changed("concurrency") {
		cfg.LLMConcurrency = f.concurrency
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
