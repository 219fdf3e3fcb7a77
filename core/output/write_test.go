package output

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/schemagate/core/exporter"
)

func unit(name, path, content string) exporter.ExportUnit {
	return exporter.ExportUnit{Name: name, Kind: "struct", Path: path, Content: content, Digest: "d-" + name}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(data)
}

func TestWriteDir(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bindings")
	files := []exporter.ExportUnit{
		unit("Command", "Command.ts", "export type Command = \"EndEpoch\";\n"),
		unit("Block", "consensus/Block.ts", "export type Block = {};\n"),
	}
	m := NewManifest("abc", exporter.DefaultOptions(), files, files)

	if err := WriteDir(out, files, m); err != nil {
		t.Fatalf("WriteDir() error = %v", err)
	}

	if got := readFile(t, filepath.Join(out, "Command.ts")); got != files[0].Content {
		t.Errorf("Command.ts = %q", got)
	}
	if got := readFile(t, filepath.Join(out, "consensus", "Block.ts")); got != files[1].Content {
		t.Errorf("Block.ts = %q", got)
	}

	read, err := ReadManifest(out)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if read.SchemaVersion != "abc" || len(read.Files) != 2 {
		t.Errorf("manifest = %+v", read)
	}

	entries, _ := os.ReadDir(filepath.Dir(out))
	if len(entries) != 1 {
		t.Errorf("staging leftovers next to output: %v", entries)
	}
}

func TestWriteDir_ReplacesPrevious(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bindings")
	first := []exporter.ExportUnit{unit("Old", "Old.ts", "old\n")}
	if err := WriteDir(out, first, NewManifest("v1", exporter.DefaultOptions(), first, first)); err != nil {
		t.Fatalf("first WriteDir() error = %v", err)
	}

	second := []exporter.ExportUnit{unit("New", "New.ts", "new\n")}
	if err := WriteDir(out, second, NewManifest("v2", exporter.DefaultOptions(), second, second)); err != nil {
		t.Fatalf("second WriteDir() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(out, "Old.ts")); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale file from previous run should be gone")
	}
	if got := readFile(t, filepath.Join(out, "New.ts")); got != "new\n" {
		t.Errorf("New.ts = %q", got)
	}
}

func TestWriteDir_FailureLeavesPreviousIntact(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "bindings")
	good := []exporter.ExportUnit{unit("Keep", "Keep.ts", "keep\n")}
	if err := WriteDir(out, good, NewManifest("v1", exporter.DefaultOptions(), good, good)); err != nil {
		t.Fatalf("WriteDir() error = %v", err)
	}

	tests := []struct {
		name  string
		files []exporter.ExportUnit
	}{
		{"escaping path", []exporter.ExportUnit{unit("A", "A.ts", "a\n"), unit("Evil", "../Evil.ts", "x\n")}},
		{"duplicate path", []exporter.ExportUnit{unit("A", "A.ts", "a\n"), unit("B", "A.ts", "b\n")}},
		{"reserved name", []exporter.ExportUnit{unit("M", ManifestName, "{}\n")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WriteDir(out, tt.files, NewManifest("v2", exporter.DefaultOptions(), tt.files, tt.files))
			if err == nil {
				t.Fatal("WriteDir() should fail")
			}

			if got := readFile(t, filepath.Join(out, "Keep.ts")); got != "keep\n" {
				t.Errorf("previous output modified: %q", got)
			}
			if _, err := os.Stat(filepath.Join(out, "A.ts")); !errors.Is(err, os.ErrNotExist) {
				t.Error("partial output must not be visible")
			}

			entries, _ := os.ReadDir(root)
			for _, e := range entries {
				if strings.Contains(e.Name(), "staging") {
					t.Errorf("staging dir %s not cleaned up", e.Name())
				}
			}
		})
	}
}

func TestWriteDir_RefusesForeignDir(t *testing.T) {
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(out, "notes.txt"), []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	files := []exporter.ExportUnit{unit("A", "A.ts", "a\n")}
	err := WriteDir(out, files, NewManifest("v1", exporter.DefaultOptions(), files, files))
	if !errors.Is(err, ErrForeignDir) {
		t.Fatalf("WriteDir() error = %v, want ErrForeignDir", err)
	}
	if got := readFile(t, filepath.Join(out, "notes.txt")); got != "mine" {
		t.Error("foreign directory must not be touched")
	}
}

func TestNewManifest_SortedAndStable(t *testing.T) {
	units := []exporter.ExportUnit{
		{Name: "Zeta", Kind: "struct", Path: "Zeta.ts", Digest: "z", Imports: []exporter.Import{{Name: "Alpha", From: "./Alpha"}}},
		{Name: "Alpha", Kind: "alias", Path: "Alpha.ts", Digest: "a", Generics: []string{"T"}, Recursive: true},
	}

	m1, _ := NewManifest("v", exporter.DefaultOptions(), units, units).Encode()
	m2, _ := NewManifest("v", exporter.DefaultOptions(), units, units).Encode()
	if string(m1) != string(m2) {
		t.Error("manifest encoding should be deterministic")
	}

	m := NewManifest("v", exporter.DefaultOptions(), units, units)
	if m.Types[0].Name != "Alpha" || m.Types[1].Name != "Zeta" {
		t.Errorf("types not sorted by name: %+v", m.Types)
	}
	if m.Types[1].Imports[0] != "Alpha" {
		t.Errorf("imports = %v", m.Types[1].Imports)
	}
	if !m.HasFile("Zeta.ts") || m.HasFile("Missing.ts") {
		t.Error("HasFile() mismatch")
	}
}

func TestNewManifest_SingleLayout(t *testing.T) {
	opts := exporter.DefaultOptions()
	opts.Layout = exporter.LayoutSingle

	units := []exporter.ExportUnit{{Name: "A", Path: "A.ts"}, {Name: "B", Path: "B.ts"}}
	bundle := []exporter.ExportUnit{{Name: "index", Path: "index.ts", Digest: "i"}}

	m := NewManifest("v", opts, units, bundle)
	for _, e := range m.Types {
		if e.File != "index.ts" {
			t.Errorf("%s file = %s, want index.ts", e.Name, e.File)
		}
	}
	if len(m.Files) != 1 {
		t.Errorf("files = %+v", m.Files)
	}
}
