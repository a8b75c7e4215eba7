package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"jiratriage/internal/triage"
)

func newSplitCmd(st *rootState) *cobra.Command {
	var chunkSize int
	cmd := &cobra.Command{
		Use:   "split FILE",
		Short: "Show how a dump would be split, without calling the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := st.cfg
			if cmd.Flags().Changed("chunk-size") {
				cfg.MaxTicketsPerChunk = chunkSize
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			runner, cleanup, err := buildRunner(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer cleanup()

			plan, err := runner.DryRun(cmd.Context(), triage.Input{Path: args[0]})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tickets: %d\nChunks: %d\n", len(plan.Tickets), len(plan.Chunks))
			for _, c := range plan.Chunks {
				fmt.Fprintf(out, "chunk %d (%d tickets):", c.Index+1, len(c.Tickets))
				for _, k := range c.Keys() {
					fmt.Fprintf(out, " %s", k)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "tickets per model call")
	return cmd
}
