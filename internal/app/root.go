package app

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jiratriage/internal/config"
	"jiratriage/internal/httpx"
)

type rootState struct {
	configPath string
	cfg        config.Config
}

func NewRootCmd() *cobra.Command {
	st := &rootState{}
	root := &cobra.Command{
		Use:   "jiratriage",
		Short: "Triage Jira ticket dumps with an LLM",
		Long: "Splits a Jira export (PDF or text) or a JQL search into tickets, asks a model to " +
			"categorize each one as Solvable Bug, Not a Bug or Needs More Details, and writes an HTML report.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(st.configPath)
			if err != nil {
				return eris.Wrap(err, "load config")
			}
			st.cfg = c

			if err := config.InitLogger(c.LogLevel, c.LogFormat); err != nil {
				return eris.Wrap(err, "init logger")
			}
			timeout := httpx.ConfigureExternalHTTPClient(c.ExternalHTTPTimeoutSeconds)
			zap.L().Debug("config loaded",
				zap.String("provider", c.LLMProvider),
				zap.String("format", c.ResponseFormat),
				zap.Int("chunk_size", c.MaxTicketsPerChunk),
				zap.Int("concurrency", c.LLMConcurrency),
				zap.Bool("jira", c.JiraConfigured()),
				zap.Bool("slack", c.SlackConfigured()),
				zap.Bool("history", c.DBPath != ""),
				zap.Duration("http_timeout", timeout),
			)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", "", "config file (default config.yaml or $CONFIG_PATH)")

	root.AddCommand(newAnalyzeCmd(st), newSplitCmd(st), newHistoryCmd(st))
	return root
}
