package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "goclaw",
	Short: "Goclaw - Agent Scheduling & Execution Engine",
	Long: `Goclaw turns declarative agent schedules into concrete executions,
claims each one exactly once, runs it through a bounded tool-calling loop
with policy-gated tool approval, and archives every finished run.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}
