package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/schemagate/app"
	"github.com/artpar/schemagate/bootstrap"
	"github.com/artpar/schemagate/config"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "schemagate",
	Short: "Schema registry, TypeScript exporter and consistency checker",
	Long: `schemagate keeps TypeScript bindings in lockstep with a canonical
schema directory.

It seals the schema into a content-addressed snapshot, renders one
declaration file per type, and reports breaking changes and drift between
the schema and the files checked into a repository.

Quick start:
  schemagate generate          # Write bindings for ./schemas into ./bindings
  schemagate check --drift     # Fail when the bindings are out of date
  schemagate serve             # Serve the live snapshot over HTTP

History:
  schemagate publish --label v1
  schemagate history
  schemagate check --base-version latest`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", bootstrap.DefaultConfigPath, "config file path")
}

// loadConfig reads the config file when it exists and falls back to
// SCHEMAGATE_* environment variables.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

// newApp wires a one-shot application. Metrics are only served by serve.
func newApp(cfg *config.Config, withStore bool) (*bootstrap.App, error) {
	cfg.Metrics.Enabled = false
	return bootstrap.New(cfg, bootstrap.Options{
		ToolVersion: version,
		NoStore:     !withStore,
	})
}

func printError(err error) {
	var failed *app.ExportFailedError
	if errors.As(err, &failed) {
		fmt.Fprintf(os.Stderr, "%s %d type(s) could not be exported:\n", crossMark, len(failed.Failures))
		for _, f := range failed.Failures {
			fmt.Fprintf(os.Stderr, "    - %v\n", f)
		}
		fmt.Fprintln(os.Stderr, "Nothing was written.")
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
}

// Report marks are colored only when stdout is a terminal.
var checkMark, crossMark, warnMark = reportMarks(bootstrap.IsTerminal(os.Stdout))

func reportMarks(color bool) (check, cross, warn string) {
	if !color {
		return "✓", "✗", "!"
	}
	return "\033[32m✓\033[0m", "\033[31m✗\033[0m", "\033[33m!\033[0m"
}
