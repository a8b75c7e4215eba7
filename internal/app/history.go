package app

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"jiratriage/internal/domain"
	"jiratriage/internal/storage/sqlite"
)

func newHistoryCmd(st *rootState) *cobra.Command {
	var (
		limit int
		runID string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent triage runs, or the analyses of one run with --run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if st.cfg.DBPath == "" {
				return eris.New("history: db_path is not set")
			}
			store, err := sqlite.Open(st.cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			if runID != "" {
				id, analyses, err := store.RunAnalyses(runID)
				if err != nil {
					return eris.Wrap(err, "history")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s: %d analyses\n", id, len(analyses))
				if len(analyses) > 0 {
					formatAnalysesList(cmd.OutOrStdout(), analyses)
				}
				return nil
			}

			runs, err := store.ListRuns(limit)
			if err != nil {
				return eris.Wrap(err, "history")
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
				return nil
			}
			formatRunsList(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "show the analyses of this run (an ID prefix is enough)")
	return cmd
}

func formatRunsList(out io.Writer, runs []domain.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tSOURCE\tTICKETS\tFAILED\tANALYSES\tMODEL\tTOKENS\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------\t------\t--------\t-----\t------\t--------")

	for _, r := range runs {
		src := r.Source
		if len(src) > 40 {
			src = src[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%d\t%s\t%d\t%s\n",
			truncateID(r.ID),
			r.StartedAt.Format("2006-01-02 15:04"),
			src,
			r.Tickets,
			r.FailedChunks, r.Chunks,
			r.Analyses,
			r.Model,
			r.TotalTokens(),
			r.Duration().Round(time.Second),
		)
	}
	_ = w.Flush()
}

func formatAnalysesList(out io.Writer, analyses []domain.Analysis) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tCATEGORY\tSTATUS\tSUMMARY")
	_, _ = fmt.Fprintln(w, "---\t--------\t------\t-------")

	for _, a := range analyses {
		summary := a.Summary
		if r := []rune(summary); len(r) > 60 {
			summary = string(r[:57]) + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.TicketKey, a.Category, a.Status, summary)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
