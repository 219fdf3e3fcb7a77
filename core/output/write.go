package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/schemagate/core/exporter"
)

// ErrForeignDir is returned when the target directory exists, is not empty
// and was not produced by WriteDir.
var ErrForeignDir = errors.New("output directory exists and has no manifest")

// WriteDir writes files and the manifest into dir, replacing its previous
// contents. The set is staged in a sibling directory and swapped in once
// every file is written and synced; on any failure dir is left untouched.
func WriteDir(dir string, files []exporter.ExportUnit, manifest *Manifest) (err error) {
	dir = filepath.Clean(dir)
	if err := checkReplaceable(dir); err != nil {
		return err
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create output parent: %w", err)
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".staging-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging)
		}
	}()

	for _, f := range files {
		target, err := stagedPath(staging, f.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", f.Path, err)
		}
		if err := writeFile(target, []byte(f.Content)); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}

	if manifest != nil {
		data, err := manifest.Encode()
		if err != nil {
			return err
		}
		if err := writeFile(filepath.Join(staging, ManifestName), data); err != nil {
			return fmt.Errorf("write %s: %w", ManifestName, err)
		}
	}

	// The staging dir was created 0700.
	if err := os.Chmod(staging, 0o755); err != nil {
		return fmt.Errorf("chmod staging dir: %w", err)
	}

	return swap(staging, dir)
}

// stagedPath maps a slash path from a unit into the staging dir.
func stagedPath(staging, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if rel == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output path %q escapes the output directory", rel)
	}
	if clean == ManifestName {
		return "", fmt.Errorf("output path %q is reserved", rel)
	}
	return filepath.Join(staging, clean), nil
}

func checkReplaceable(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
		return fmt.Errorf("%s: %w", dir, ErrForeignDir)
	}
	return nil
}

// swap moves staging into place at dir, keeping the old dir until the
// rename succeeds.
func swap(staging, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.Rename(staging, dir); err != nil {
			return fmt.Errorf("install output: %w", err)
		}
		return nil
	}

	backup := staging + ".old"
	if err := os.Rename(dir, backup); err != nil {
		return fmt.Errorf("move previous output aside: %w", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		if rerr := os.Rename(backup, dir); rerr != nil {
			return fmt.Errorf("install output: %w (restore failed: %v)", err, rerr)
		}
		return fmt.Errorf("install output: %w", err)
	}

	if err := os.RemoveAll(backup); err != nil {
		return fmt.Errorf("remove previous output: %w", err)
	}
	return nil
}

func writeFile(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err = f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
