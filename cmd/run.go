// -- cmd/run.go --
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/agent"
	"github.com/xkilldash9x/deskpilot/internal/observability"
)

func newRunCmd() *cobra.Command {
	var (
		snapshot string
		fullScan bool
		journal  bool
		noSubmit bool
	)

	runCmd := &cobra.Command{
		Use:   "run <task...>",
		Short: "Run one automation task to completion",
		Long: `Runs the perceive, decide, act loop until the model reports done, the
step ceiling is reached, the loop fails too often, or it is interrupted.
Input events go to the dry-run backend and are logged, not injected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("snapshot") {
				cfg.SetPerceptionSnapshotPath(snapshot)
			}
			if cmd.Flags().Changed("full-scan") {
				cfg.SetPerceptionFullScan(fullScan)
			}
			if cmd.Flags().Changed("journal") {
				cfg.SetJournalEnabled(journal)
			}
			if noSubmit {
				cfg.SetAgentSubmitAfterType(false)
			}

			task := strings.Join(args, " ")
			c, err := buildComponents(ctx, logger, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer c.Shutdown()

			outcome, err := c.agent.Run(ctx, task)
			if err != nil {
				if errors.Is(err, agent.ErrPermissionDenied) {
					return fmt.Errorf("cannot start task: %w", err)
				}
				return err
			}
			logger.Debug("Run finished", zap.String("run_id", outcome.RunID), zap.String("reason", string(outcome.Reason)))
			printOutcome(cmd.OutOrStdout(), outcome)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		},
	}

	runCmd.Flags().StringVar(&snapshot, "snapshot", "", "Accessibility snapshot to perceive (overrides perception.snapshot_path)")
	runCmd.Flags().BoolVar(&fullScan, "full-scan", false, "Render every running app instead of the frontmost one")
	runCmd.Flags().BoolVar(&journal, "journal", false, "Record the run in the journal database")
	runCmd.Flags().BoolVar(&noSubmit, "no-submit", false, "Do not press Enter after typing")
	return runCmd
}

func printOutcome(w io.Writer, out agent.Outcome) {
	status := "incomplete"
	switch {
	case out.Done && out.Success:
		status = "succeeded"
	case out.Done:
		status = "failed"
	}
	fmt.Fprintf(w, "Task %s after %d steps (%s).\n", status, out.Steps, out.Reason)
	if out.Text != "" {
		fmt.Fprintln(w, out.Text)
	}
	for _, a := range out.Attachments {
		fmt.Fprintf(w, "  attachment: %s\n", a)
	}
	fmt.Fprintf(w, "Run ID: %s\n", out.RunID)
}
