// Command lens overlays static-analysis issues on the working copy of a
// file, keeping issue lines correct while the file is being edited.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/issuelens/internal/config"
	"github.com/steveyegge/issuelens/internal/debug"
	"github.com/steveyegge/issuelens/internal/telemetry"
	"github.com/steveyegge/issuelens/internal/ui"
)

var (
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	logger = slog.Default()
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.AddGroup(&cobra.Group{ID: "issues", Title: "Working With Issues:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})
}

var rootCmd = &cobra.Command{
	Use:   "lens",
	Short: "lens - static-analysis issues on the lines you are editing",
	Long: `lens fetches analyzer issues for a file, anchors them to the reference
snapshot (git HEAD by default) and moves them onto the matching lines of the
working copy, so findings stay put while the file changes.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Fprintf(cmd.OutOrStdout(), "lens version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		setupSignalContext()
		applyVerbosityFlags()
		ui.ApplyColorPreference()
		if err := telemetry.Init(rootCtx, "lens", Version); err != nil {
			debug.Logf("telemetry init failed: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			outputJSONError(err, "")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
