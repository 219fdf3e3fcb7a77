package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateSchemaDir string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and schema without writing anything",
	Long: `Validate the schemagate configuration and the schema directory.

Checks:
  - Config file syntax and values
  - Schema documents parse and every reference resolves
  - Every type can be exported to the configured target
  - The union policy file parses (when configured)

Examples:
  schemagate validate
  schemagate validate --schema ./schemas`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateSchemaDir, "schema", "", "schema directory (default from config)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)
	} else {
		fmt.Fprintf(out, "Validating environment configuration...\n\n")
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)
	if validateSchemaDir != "" {
		cfg.Schema.Dir = validateSchemaDir
	}

	a, err := newApp(cfg, false)
	if err != nil {
		fmt.Fprintf(out, "  %s Union policy valid\n", crossMark)
		return err
	}
	defer a.Close()
	if cfg.Check.Policy != "" {
		fmt.Fprintf(out, "  %s Union policy valid: %s\n", checkMark, cfg.Check.Policy)
	}

	snap, err := a.Service.Load(cmd.Context(), cfg.Schema.Dir)
	if err != nil {
		fmt.Fprintf(out, "  %s Schema loads\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Schema loads: %d type(s), version %s\n", checkMark, snap.Len(), snap.ShortVersion())

	for _, n := range snap.AllNodes() {
		if snap.IsRecursive(n.Name) {
			fmt.Fprintf(out, "  %s %s is recursive: %v\n", warnMark, n.Name, snap.Cycle(n.Name))
		}
	}

	r, err := a.Service.Render(cmd.Context(), snap)
	if err != nil {
		fmt.Fprintf(out, "  %s Every type exports to %s\n", crossMark, cfg.Export.Target)
		return err
	}
	fmt.Fprintf(out, "  %s Every type exports to %s (%d file(s))\n", checkMark, cfg.Export.Target, len(r.Files))

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Validation passed.")
	return nil
}
