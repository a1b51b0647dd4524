// Command synapse runs a coordination node in a git-backed streaming mesh.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fabriziosalmi/synapse-state/internal/ui"
)

var (
	jsonOutput bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "synapse <command>",
	Short: "Coordination node for a git-backed streaming mesh",
	Long: `synapse coordinates a mesh of autonomous streaming nodes through a
shared git repository: presence heartbeats, short-lived broadcast events,
an aggregated world-state snapshot for the renderer, and a deterministic
write-turn schedule that keeps push conflicts rare.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
