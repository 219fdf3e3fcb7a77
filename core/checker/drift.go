package checker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/goki/go-difflib/difflib"

	"github.com/artpar/schemagate/core/exporter"
)

// DriftKind classifies a difference between expected and on-disk output.
type DriftKind string

const (
	// DriftMissing: the file would be generated but does not exist.
	DriftMissing DriftKind = "missing"
	// DriftModified: the file exists with different content.
	DriftModified DriftKind = "modified"
	// DriftStale: the file exists but would no longer be generated.
	DriftStale DriftKind = "stale"
)

// Drift is one drifted file.
type Drift struct {
	Kind DriftKind `json:"kind"`
	Path string    `json:"path"`

	// Diff is a unified diff from the on-disk file to the expected one.
	Diff string `json:"diff,omitempty"`
}

// DriftReport lists drifted files sorted by path.
type DriftReport struct {
	Dir     string  `json:"dir"`
	Entries []Drift `json:"entries"`
}

// Clean reports whether the directory matches what would be generated.
func (r *DriftReport) Clean() bool {
	return len(r.Entries) == 0
}

// Count returns the number of entries of a kind.
func (r *DriftReport) Count(kind DriftKind) int {
	n := 0
	for _, e := range r.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// ExpectedFile is one file that regeneration would produce.
type ExpectedFile struct {
	Path    string
	Content string
}

// ExpectedFiles adapts export units.
func ExpectedFiles(units []exporter.ExportUnit) []ExpectedFile {
	out := make([]ExpectedFile, len(units))
	for i, u := range units {
		out[i] = ExpectedFile{Path: u.Path, Content: u.Content}
	}
	return out
}

// DetectDrift compares expected with the files under dir. Every regular
// file under dir that is not expected is reported stale. A missing dir
// reports every expected file missing.
func DetectDrift(dir string, expected []ExpectedFile) (*DriftReport, error) {
	report := &DriftReport{Dir: dir}
	want := make(map[string]bool, len(expected))

	for _, f := range expected {
		want[f.Path] = true

		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if errors.Is(err, fs.ErrNotExist) {
			report.Entries = append(report.Entries, Drift{Kind: DriftMissing, Path: f.Path})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Path, err)
		}

		if string(data) != f.Content {
			diff, err := unifiedDiff(f.Path, string(data), f.Content)
			if err != nil {
				return nil, err
			}
			report.Entries = append(report.Entries, Drift{Kind: DriftModified, Path: f.Path, Diff: diff})
		}
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !want[rel] {
			report.Entries = append(report.Entries, Drift{Kind: DriftStale, Path: rel})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	sort.SliceStable(report.Entries, func(i, j int) bool {
		return report.Entries[i].Path < report.Entries[j].Path
	})
	return report, nil
}

func unifiedDiff(path, onDisk, expected string) (string, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(onDisk),
		B:        difflib.SplitLines(expected),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", path, err)
	}
	return diff, nil
}
