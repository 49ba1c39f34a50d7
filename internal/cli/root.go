// Package cli wires the claude-mem subcommands. Commands are thin: they
// parse flags and call into the core packages.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "claude-mem",
	Short: "Local memory capture and retrieval service for AI coding sessions",
	Long: `claude-mem observes a developer's sessions with an AI coding assistant,
distills tool invocations into compact structured observations, and serves
semantic and timeline queries back to the assistant on demand.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(gitSyncCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(hookCmd)
}
