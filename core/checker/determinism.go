package checker

import (
	"context"
	"fmt"

	"github.com/artpar/schemagate/core/exporter"
	"github.com/artpar/schemagate/core/registry"
)

// NondeterminismError reports a unit whose content differed between runs.
type NondeterminismError struct {
	Name string
	Run  int
}

func (e *NondeterminismError) Error() string {
	return fmt.Sprintf("export of %q differed on run %d", e.Name, e.Run)
}

// VerifyDeterministic exports snap runs times and checks that every run
// produces the same units in the same order with the same digests.
func VerifyDeterministic(ctx context.Context, e *exporter.Exporter, snap *registry.Snapshot, runs int) error {
	if runs < 2 {
		runs = 2
	}

	var first *exporter.Batch
	for run := 1; run <= runs; run++ {
		batch, err := e.ExportAll(ctx, snap)
		if err != nil {
			return fmt.Errorf("run %d: %w", run, err)
		}
		if first == nil {
			first = batch
			continue
		}

		if len(batch.Units) != len(first.Units) {
			return fmt.Errorf("run %d exported %d units, first run %d", run, len(batch.Units), len(first.Units))
		}
		for i, u := range batch.Units {
			f := first.Units[i]
			if u.Name != f.Name || u.Digest != f.Digest || u.Path != f.Path {
				return &NondeterminismError{Name: f.Name, Run: run}
			}
		}
	}
	return nil
}
