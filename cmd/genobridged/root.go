package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "genobridged",
	Short: "Tool-dispatch broker for genome-browser MCP integrations",
	Long: `genobridged sits between MCP clients and interactive genome
browsers. It exposes a catalogue of sequence, structure and pathway
analysis tools over MCP stdio, dispatching each call either to an
in-process handler, a long-running background task, or an interactive
client connected over WebSocket.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML (default ~/.genobridge/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateToolsCmd)
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
