// -- cmd/history.go --
package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

const historyTimeLayout = "2006-01-02 15:04:05"

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		runID string
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled runs, or the steps of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if !cfg.Journal().Enabled {
				return errors.New("the run journal is disabled (set journal.enabled: true)")
			}

			journal, err := store.Open(ctx, observability.GetLogger(), cfg.Journal())
			if err != nil {
				return fmt.Errorf("failed to open run journal: %w", err)
			}
			defer journal.Close()

			if runID != "" {
				steps, err := journal.Steps(ctx, runID)
				if err != nil {
					return fmt.Errorf("failed to load steps of run %s: %w", runID, err)
				}
				return printSteps(cmd.OutOrStdout(), steps)
			}

			runs, err := journal.Runs(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	historyCmd.Flags().StringVar(&runID, "run", "", "Show the steps of this run")
	return historyCmd
}

func printRuns(w io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTEPS\tRESULT\tTASK")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, formatTime(r.StartedAt), r.Steps, runResult(r), r.Task)
	}
	return tw.Flush()
}

func printSteps(w io.Writer, steps []store.Step) error {
	if len(steps) == 0 {
		_, err := fmt.Fprintln(w, "No steps recorded.")
		return err
	}
	for _, s := range steps {
		fmt.Fprintf(w, "Step %d [%s] attempt %d, %s\n", s.Number+1, s.App, s.Attempt, formatTime(s.Recorded))
		if s.Failure != "" {
			fmt.Fprintf(w, "  failure: %s\n", s.Failure)
		}
		if s.Output != "" {
			fmt.Fprintf(w, "  output:  %s\n", s.Output)
		}
		if s.Results != "" {
			fmt.Fprintf(w, "  results: %s\n", s.Results)
		}
	}
	return nil
}

func runResult(r store.Run) string {
	switch {
	case r.FinishedAt.IsZero():
		return "running"
	case r.Done && r.Success:
		return "success"
	case r.Done:
		return "failure"
	default:
		return r.Reason
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(historyTimeLayout)
}
