package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artpar/schemagate/bootstrap"
	"github.com/artpar/schemagate/core/watch"
)

var (
	generateSchemaDir string
	generateOutDir    string
	generateLayout    string
	generateWatch     bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write TypeScript bindings for the schema directory",
	Long: `Load the schema directory, export every type and replace the output
directory with the result.

When any type cannot be expressed in TypeScript, every failure is listed,
nothing is written and the exit status is non-zero.

Examples:
  schemagate generate
  schemagate generate --schema ./schemas --out ./web/src/bindings
  schemagate generate --layout single
  schemagate generate --watch`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateSchemaDir, "schema", "", "schema directory (default from config)")
	generateCmd.Flags().StringVarP(&generateOutDir, "out", "o", "", "output directory (default from config)")
	generateCmd.Flags().StringVar(&generateLayout, "layout", "", "file layout: per-type or single")
	generateCmd.Flags().BoolVarP(&generateWatch, "watch", "w", false, "regenerate whenever a schema file changes")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if generateSchemaDir != "" {
		cfg.Schema.Dir = generateSchemaDir
	}
	if generateOutDir != "" {
		cfg.Output.Dir = generateOutDir
	}
	if generateLayout != "" {
		cfg.Output.Layout = generateLayout
	}

	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	if !generateWatch {
		return generateOnce(cmd.Context(), a, out)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := generateOnce(ctx, a, out); err != nil {
		printError(err)
	}

	w, err := watch.New(cfg.Schema.Dir, cfg.Watch.Debounce, a.Logger)
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Fprintf(out, "Watching %s for changes (Ctrl+C to stop)\n", cfg.Schema.Dir)
	err = w.Run(ctx, func(ctx context.Context) error {
		if err := generateOnce(ctx, a, out); err != nil {
			printError(err)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func generateOnce(ctx context.Context, a *bootstrap.App, out io.Writer) error {
	snap, err := a.Service.Load(ctx, a.Config.Schema.Dir)
	if err != nil {
		return err
	}

	r, err := a.Service.Generate(ctx, snap, a.Config.Output.Dir)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Generated %d file(s) for %d type(s) into %s\n",
		checkMark, len(r.Files), snap.Len(), a.Config.Output.Dir)
	fmt.Fprintf(out, "  Schema version: %s\n", snap.Version())
	return nil
}
