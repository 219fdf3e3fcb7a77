// Package output writes generated declaration files to disk.
//
// An output directory is owned by the generator: WriteDir replaces it as a
// whole, and the manifest.json it carries lists every generated file so that
// drift detection can tell generated files from stale ones.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/artpar/schemagate/core/exporter"
)

// ManifestName is the manifest file name inside an output directory.
const ManifestName = "manifest.json"

// Manifest describes one generated output directory. It carries no
// timestamps so that regenerating an unchanged schema is byte-identical.
type Manifest struct {
	Tool          string      `json:"tool"`
	ToolVersion   string      `json:"tool_version"`
	SchemaVersion string      `json:"schema_version"`
	Target        string      `json:"target"`
	Layout        string      `json:"layout"`
	Types         []TypeEntry `json:"types"`
	Files         []FileEntry `json:"files"`
}

// TypeEntry describes one exported type.
type TypeEntry struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	File      string   `json:"file"`
	Digest    string   `json:"digest"`
	Imports   []string `json:"imports,omitempty"`
	Generics  []string `json:"generics,omitempty"`
	Recursive bool     `json:"recursive,omitempty"`
}

// FileEntry describes one written file.
type FileEntry struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
}

// NewManifest builds the manifest for a batch. units are the per-type units
// and files the units actually written for the layout.
func NewManifest(version string, opts exporter.Options, units, files []exporter.ExportUnit) *Manifest {
	m := &Manifest{
		Tool:          opts.ToolName,
		ToolVersion:   opts.ToolVersion,
		SchemaVersion: version,
		Target:        opts.Target,
		Layout:        string(opts.Layout),
		Types:         make([]TypeEntry, 0, len(units)),
		Files:         make([]FileEntry, 0, len(files)),
	}

	for _, u := range units {
		file := u.Path
		if opts.Layout == exporter.LayoutSingle && len(files) == 1 {
			file = files[0].Path
		}

		var imports []string
		for _, imp := range u.Imports {
			imports = append(imports, imp.Name)
		}

		m.Types = append(m.Types, TypeEntry{
			Name:      u.Name,
			Kind:      string(u.Kind),
			File:      file,
			Digest:    u.Digest,
			Imports:   imports,
			Generics:  u.Generics,
			Recursive: u.Recursive,
		})
	}
	sort.Slice(m.Types, func(i, j int) bool { return m.Types[i].Name < m.Types[j].Name })

	for _, f := range files {
		m.Files = append(m.Files, FileEntry{Path: f.Path, Digest: f.Digest})
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })

	return m
}

// Encode renders the manifest as indented JSON with a trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// HasFile reports whether path is listed as a generated file.
func (m *Manifest) HasFile(path string) bool {
	for _, f := range m.Files {
		if f.Path == path {
			return true
		}
	}
	return false
}

// ReadManifest loads the manifest of an output directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
