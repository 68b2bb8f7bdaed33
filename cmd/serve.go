package cmd

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/graph-dispatch-mcp/internal/config"
	"github.com/tonimelisma/graph-dispatch-mcp/internal/dispatch"
	"github.com/tonimelisma/graph-dispatch-mcp/internal/logger"
	"github.com/tonimelisma/graph-dispatch-mcp/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdio",
	Long: `serve starts the dispatch MCP server and speaks the Model Context
Protocol over stdin/stdout. All logging goes to stderr so it never
contaminates the protocol stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		debug, _ := cmd.Flags().GetBool("debug")
		level := cfg.LogLevel
		if debug {
			level = "debug"
		}
		log := logger.NewSlogLogger(logger.LevelFromString(level))

		if !cfg.HasCredentials() {
			log.Warn("starting without DISPATCH_TENANT_ID/DISPATCH_CLIENT_ID/DISPATCH_CLIENT_SECRET; every dispatch will fail authentication")
		}

		store := dispatch.NewCredentialStore(cfg.TenantID, cfg.ClientID, cfg.ClientSecret)
		engine := dispatch.NewEngine(store,
			dispatch.WithRateLimit(cfg.RateLimit.MaxPerWindow, cfg.RateLimit.Window),
			dispatch.WithDefaultRetry(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay),
			dispatch.WithDefaultTimeout(cfg.DefaultTimeout),
			dispatch.WithLogger(log),
		)

		mcpServer := server.NewMCPServer("graph-dispatch-mcp", "1.0.0",
			server.WithInstructions(
				"Dispatches authenticated requests to Microsoft Graph and Azure Resource "+
					"Manager. msgraph_request and azure_request take a server-relative path "+
					"and an HTTP method; set fetchAll to follow @odata.nextLink pagination "+
					"on GET requests. Use dispatch_health to check credential status before "+
					"relying on either tool.",
			),
			server.WithLogging(),
		)

		tools.Register(mcpServer, engine)

		log.Info("starting MCP server", "transport", "stdio")
		if err := server.ServeStdio(mcpServer); err != nil {
			fmt.Fprintln(os.Stderr, "mcp server stopped:", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
