package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/graph-dispatch-mcp/internal/config"
	"github.com/tonimelisma/graph-dispatch-mcp/internal/dispatch"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print the dispatch engine's health status and exit",
	Long: `health loads configuration from the environment exactly as serve would,
builds a Dispatch Engine, and prints its HealthStatus as JSON to stdout —
useful for an operator or a container healthcheck to confirm credentials
are configured without starting the MCP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		store := dispatch.NewCredentialStore(cfg.TenantID, cfg.ClientID, cfg.ClientSecret)
		engine := dispatch.NewEngine(store,
			dispatch.WithRateLimit(cfg.RateLimit.MaxPerWindow, cfg.RateLimit.Window),
			dispatch.WithDefaultRetry(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay),
			dispatch.WithDefaultTimeout(cfg.DefaultTimeout),
		)

		out, err := json.MarshalIndent(engine.HealthStatus(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
