// -- cmd/voice.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/terminal"
	"github.com/xkilldash9x/deskpilot/internal/voice"
)

func newVoiceCmd() *cobra.Command {
	var snapshot string

	voiceCmd := &cobra.Command{
		Use:   "voice",
		Short: "Start a conversational session",
		Long: `Starts a conversation with the assistant. Each line typed on stdin is one
transcript update; a pause of voice.silence_debounce commits it. Replies are
printed to stdout. Say "stop" or "exit", or press Ctrl+D, to end the session.`,
		Args: cobra.NoArgs,
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

			c, err := buildComponents(ctx, logger, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer c.Shutdown()

			supervisor := voice.NewSupervisor(logger, cfg.Voice(), voice.Deps{
				LLM:         c.llm,
				Transcriber: terminal.NewTranscriber(c.console),
				Speaker:     terminal.NewSpeaker(c.console),
				Agent:       c.agent,
				Perceiver:   c.voiceReader,
				Captioner:   c.overlay,
				Permissions: c.platform,
			})
			if err := supervisor.StartSession(ctx); err != nil {
				return fmt.Errorf("failed to start voice session: %w", err)
			}

			select {
			case <-supervisor.Done():
			case <-ctx.Done():
			}
			supervisor.StopSession()
			return ctx.Err()
		},
	}

	voiceCmd.Flags().StringVar(&snapshot, "snapshot", "", "Accessibility snapshot to perceive (overrides perception.snapshot_path)")
	return voiceCmd
}
