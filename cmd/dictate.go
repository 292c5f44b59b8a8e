// -- cmd/dictate.go --
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/deskpilot/internal/input"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/terminal"
	"github.com/xkilldash9x/deskpilot/internal/voice"
)

func newDictateCmd() *cobra.Command {
	var focusedRole string

	dictateCmd := &cobra.Command{
		Use:   "dictate",
		Short: "Type a live transcript into the focused text field",
		Long: `Holds the talk key until stdin ends. Each line read is the full transcript so
far; the focused field is corrected to match it by deleting the changed
suffix and typing the rest. Recording continues for voice.dictation_tail
after release. Input goes to the dry-run backend, which reports --focused-role
as the focused element.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			exec := input.NewDryRunExecutor(logger)
			exec.SetFocusedRole(focusedRole)
			console := terminal.NewConsole(logger, cmd.InOrStdin(), cmd.OutOrStdout(), cfg.Agent().Name)
			dictation := voice.NewDictation(logger, cfg.Voice(), terminal.NewTranscriber(console), input.NewDispatcher(logger, exec))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return console.Run(gctx) })

			if err := dictation.Press(ctx); err != nil {
				return fmt.Errorf("failed to start dictation: %w", err)
			}
			select {
			case <-dictation.Done():
			case <-ctx.Done():
			}
			text, err := dictation.Release(ctx)

			out := cmd.OutOrStdout()
			switch {
			case errors.Is(err, voice.ErrNothingDictated):
				fmt.Fprintln(out, "No text detected.")
			case err != nil:
				return err
			default:
				fmt.Fprintf(out, "Dictated: %s\n", text)
			}
			fmt.Fprintf(out, "Field: %q\n", exec.TypedText())

			// A read blocked on stdin cannot be interrupted; only wait for a
			// pump that has already finished.
			select {
			case <-console.Done():
				if err := g.Wait(); err != nil {
					return err
				}
			default:
			}
			return ctx.Err()
		},
	}

	dictateCmd.Flags().StringVar(&focusedRole, "focused-role", "AXTextField", "Role the dry-run backend reports for the focused element")
	return dictateCmd
}
