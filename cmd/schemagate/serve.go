package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artpar/schemagate/bootstrap"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the live schema snapshot over HTTP",
	Long: `Start the schemagate HTTP server.

The server will:
  - Load configuration from schemagate.yaml (or --config)
  - Or load configuration from SCHEMAGATE_* environment variables
  - Load and watch the schema directory, reloading on every edit
  - Serve types, generated sources, the manifest and published history
  - Expose Prometheus metrics and the OpenAPI document when enabled

Export options, the union policy and the log level reload when the config
file changes or the process receives SIGHUP.

Environment variables:
  SCHEMAGATE_SCHEMA_DIR      - Schema directory (default: schemas)
  SCHEMAGATE_DATABASE_DSN    - History database path (default: schemagate.db)
  SCHEMAGATE_SERVER_PORT     - Server port (default: 8080)
  SCHEMAGATE_LOG_LEVEL       - Log level: debug, info, warn, error

Examples:
  schemagate serve
  schemagate serve --config /etc/schemagate/schemagate.yaml
  schemagate serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := bootstrap.New(cfg, bootstrap.Options{ToolVersion: version})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := os.Stat(cfgFile); err == nil && hotReload {
		if err := a.WatchConfig(cfgFile); err != nil {
			a.Logger.Warn().Err(err).Msg("config hot reload disabled")
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Serve(ctx)
}
