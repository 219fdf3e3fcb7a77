package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	publishSchemaDir string
	publishLabel     string
	historyLimit     int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Record the current schema snapshot in the history",
	Long: `Seal the schema directory and store the snapshot in the history
database so later checks can compare against it.

Publishing a version that is already recorded fails.

Examples:
  schemagate publish --label v1.4.0
  schemagate check --base-version latest`,
	RunE: runPublish,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List published schema snapshots",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(historyCmd)

	publishCmd.Flags().StringVar(&publishSchemaDir, "schema", "", "schema directory (default from config)")
	publishCmd.Flags().StringVarP(&publishLabel, "label", "l", "", "label for the snapshot, e.g. a release tag")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of entries (0 for all)")
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if publishSchemaDir != "" {
		cfg.Schema.Dir = publishSchemaDir
	}

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.Service.Load(cmd.Context(), cfg.Schema.Dir)
	if err != nil {
		return err
	}

	published, err := a.Service.Publish(cmd.Context(), snap, publishLabel)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Published %s (%d type(s))\n", checkMark, published.Version, published.TypeCount)
	fmt.Fprintf(out, "  ID:    %s\n", published.ID)
	if published.Label != "" {
		fmt.Fprintf(out, "  Label: %s\n", published.Label)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	history, err := a.Service.History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(history) == 0 {
		fmt.Fprintln(out, "No published snapshots.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tLABEL\tTYPES\tPUBLISHED")
	for _, s := range history {
		label := s.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", shortVersion(s.Version), label, s.TypeCount, s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
