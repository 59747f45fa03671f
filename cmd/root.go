// Package cmd wires the command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "homework-agent",
	Short: "Session persistence and conversation service for the homework study",
	Long: `homework-agent runs the conversation backend for the PTSD homework
research study: participant login, durable session resolution, the
append-only message log, and the chat exchange flow.

Subcommands:
  serve    start the HTTP API server
  migrate  apply pending database migrations
  expire   sweep inactive sessions
  version  show build information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
