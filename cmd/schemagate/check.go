package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/artpar/schemagate/app"
	"github.com/artpar/schemagate/core/checker"
	"github.com/artpar/schemagate/core/registry"
)

var (
	checkSchemaDir      string
	checkBaseVersion    string
	checkBaseDir        string
	checkDrift          bool
	checkOutDir         string
	checkPolicy         string
	checkFailOnBreaking bool
	checkRuns           int
	checkShowDiff       bool
)

// errCheckFailed makes check exit non-zero after its report is printed.
var errCheckFailed = errors.New("consistency check failed")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report schema changes and drift in generated bindings",
	Long: `Compare the schema directory against a base and, optionally, the
generated output directory against a fresh rendering.

The base is either a published snapshot (--base-version, a version,
version prefix or "latest") or another schema checkout (--base-dir).
Without a base every type is reported as added.

Exit status is non-zero when drift is found, when export is not
deterministic, when --fail-on-breaking is set and a breaking change
is found, or when the policy's fail_when expression matches.

Examples:
  schemagate check --drift
  schemagate check --base-version latest --fail-on-breaking
  schemagate check --base-dir ../main/schemas --policy policy.yaml`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkSchemaDir, "schema", "", "schema directory (default from config)")
	checkCmd.Flags().StringVar(&checkBaseVersion, "base-version", "", "published snapshot to compare against")
	checkCmd.Flags().StringVar(&checkBaseDir, "base-dir", "", "schema directory to compare against")
	checkCmd.Flags().BoolVar(&checkDrift, "drift", false, "compare the output directory with a fresh rendering")
	checkCmd.Flags().StringVarP(&checkOutDir, "out", "o", "", "output directory for --drift (default from config)")
	checkCmd.Flags().StringVar(&checkPolicy, "policy", "", "union policy file (default from config)")
	checkCmd.Flags().BoolVar(&checkFailOnBreaking, "fail-on-breaking", false, "exit non-zero on breaking changes")
	checkCmd.Flags().IntVar(&checkRuns, "runs", 0, "re-export this many times and compare (default from config)")
	checkCmd.Flags().BoolVar(&checkShowDiff, "diff", false, "print unified diffs for modified files")
	checkCmd.MarkFlagsMutuallyExclusive("base-version", "base-dir")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if checkSchemaDir != "" {
		cfg.Schema.Dir = checkSchemaDir
	}
	if checkOutDir != "" {
		cfg.Output.Dir = checkOutDir
	}
	if checkPolicy != "" {
		cfg.Check.Policy = checkPolicy
	}
	if checkRuns > 0 {
		cfg.Check.Runs = checkRuns
	}
	failOnBreaking := checkFailOnBreaking || cfg.Check.FailOnBreaking

	a, err := newApp(cfg, checkBaseVersion != "")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	var base *registry.Snapshot
	switch {
	case checkBaseVersion != "":
		base, err = a.Service.Published(ctx, checkBaseVersion)
	case checkBaseDir != "":
		base, err = app.ReadSnapshot(checkBaseDir)
	}
	if err != nil {
		return fmt.Errorf("base: %w", err)
	}

	head, err := a.Service.Load(ctx, cfg.Schema.Dir)
	if err != nil {
		return err
	}

	req := app.CheckRequest{Base: base, Head: head, Runs: cfg.Check.Runs}
	if checkDrift {
		req.DriftDir = cfg.Output.Dir
	}

	report, err := a.Service.Check(ctx, req)
	if err != nil {
		var nondet *checker.NondeterminismError
		if errors.As(err, &nondet) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", crossMark, err)
			return errCheckFailed
		}
		return err
	}

	printCheckReport(cmd.OutOrStdout(), report, checkShowDiff)

	if report.Drift != nil && !report.Drift.Clean() {
		return errCheckFailed
	}
	if failOnBreaking && report.Breaking {
		return errCheckFailed
	}
	if report.GateFailed {
		return errCheckFailed
	}
	return nil
}

func printCheckReport(out io.Writer, report *app.CheckReport, showDiff bool) {
	base := report.BaseVersion
	if base == "" {
		base = "(none)"
	}
	fmt.Fprintf(out, "Schema %s -> %s\n\n", shortVersion(base), shortVersion(report.HeadVersion))

	if len(report.Changes) == 0 {
		fmt.Fprintf(out, "  %s No schema changes\n", checkMark)
	}
	for _, c := range report.Changes {
		mark := checkMark
		if c.Breaking {
			mark = crossMark
		}
		fmt.Fprintf(out, "  %s %s\n", mark, c)
	}

	if report.Drift != nil {
		fmt.Fprintln(out)
		if report.Drift.Clean() {
			fmt.Fprintf(out, "  %s %s is up to date\n", checkMark, report.Drift.Dir)
		}
		if g := report.Generated; g != nil && !report.Drift.Clean() {
			fmt.Fprintf(out, "  %s was generated from schema %s by %s %s\n",
				report.Drift.Dir, shortVersion(g.SchemaVersion), g.Tool, g.ToolVersion)
		}
		for _, d := range report.Drift.Entries {
			note := ""
			if d.Kind == checker.DriftStale {
				note = " (not generated)"
				if report.LeftOver(d.Path) {
					note = " (no longer generated)"
				}
			}
			fmt.Fprintf(out, "  %s %-8s %s%s\n", crossMark, d.Kind, d.Path, note)
			if showDiff && d.Diff != "" {
				fmt.Fprintln(out, d.Diff)
			}
		}
	}

	fmt.Fprintln(out)
	if report.GateFailed {
		fmt.Fprintf(out, "%s Policy fail_when matched.\n", crossMark)
	}
	switch {
	case report.Breaking:
		fmt.Fprintln(out, "Breaking changes found.")
	case report.Clean():
		fmt.Fprintln(out, "No changes.")
	default:
		fmt.Fprintln(out, "Only compatible changes.")
	}
}

func shortVersion(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	return v
}
