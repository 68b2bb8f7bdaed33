// Package cmd defines the command-line entrypoint for the dispatch
// server: a root command with global flags and the serve/health
// subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "graph-dispatch-mcp",
	Short: "An MCP server mediating Microsoft Graph and Azure Resource Manager calls",
	Long: `graph-dispatch-mcp is a Model Context Protocol server that authenticates to
Microsoft Graph and Azure Resource Manager with client-credentials OAuth,
applies rate limiting and retry with backoff, follows OData pagination, and
exposes a small set of thin dispatch tools to an MCP client.

Configuration is read entirely from the environment (DISPATCH_TENANT_ID,
DISPATCH_CLIENT_ID, DISPATCH_CLIENT_SECRET, and friends); nothing is
persisted to disk.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it. It is
// called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}
