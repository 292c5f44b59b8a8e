// -- cmd/perceive.go --
package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/deskpilot/internal/accessibility"
	"github.com/xkilldash9x/deskpilot/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newPerceiveCmd() *cobra.Command {
	var (
		snapshot string
		fullScan bool
		tree     bool
	)

	perceiveCmd := &cobra.Command{
		Use:   "perceive",
		Short: "Print what the agent sees on screen",
		Long: `Runs one perception cycle and prints the indexed screen representation.
With --tree, copies the accessibility tree of every app and prints it as JSON.`,
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
			if cmd.Flags().Changed("full-scan") {
				cfg.SetPerceptionFullScan(fullScan)
			}

			platform, err := newPlatform(cfg.Perception())
			if err != nil {
				return err
			}
			reader := accessibility.NewReader(logger, platform, cfg.Perception(), cfg.Agent().Name)
			out := cmd.OutOrStdout()

			if tree {
				nodes, err := reader.FullScan(ctx)
				if err != nil {
					return fmt.Errorf("full scan failed: %w", err)
				}
				data, err := json.MarshalIndent(nodes, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode tree: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			analysis, err := reader.Analyze(ctx)
			if err != nil {
				return fmt.Errorf("perception failed: %w", err)
			}
			fmt.Fprintf(out, "Current App: %s\n", analysis.AppName)
			fmt.Fprint(out, analysis.UIRepresentation)
			fmt.Fprintf(out, "\n%d indexed elements\n", analysis.Len())
			return nil
		},
	}

	perceiveCmd.Flags().StringVar(&snapshot, "snapshot", "", "Accessibility snapshot to perceive (overrides perception.snapshot_path)")
	perceiveCmd.Flags().BoolVar(&fullScan, "full-scan", false, "Render every running app instead of the frontmost one")
	perceiveCmd.Flags().BoolVar(&tree, "tree", false, "Print the full accessibility tree as JSON")
	return perceiveCmd
}
