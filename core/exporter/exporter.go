// Package exporter projects a sealed registry snapshot into target-language
// declaration files. Each TypeNode becomes exactly one ExportUnit; references
// become imports, never inline expansions.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/schemagate/core/registry"
	"github.com/artpar/schemagate/core/schema"
)

// Exporter renders snapshots with a fixed set of options. It holds no
// per-run state and is safe for concurrent use.
type Exporter struct {
	opts   Options
	target Target
	logger zerolog.Logger
}

// New creates an exporter.
func New(opts Options, logger zerolog.Logger) (*Exporter, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("exporter options: %w", err)
	}

	return &Exporter{
		opts:   opts,
		target: NewTypeScript(opts.Optional, opts.Integers),
		logger: logger.With().Str("component", "exporter").Logger(),
	}, nil
}

// Options returns the validated options.
func (e *Exporter) Options() Options {
	return e.opts
}

// Target returns the target in use.
func (e *Exporter) Target() Target {
	return e.target
}

// Export renders one node of snap.
func (e *Exporter) Export(node schema.TypeNode, snap *registry.Snapshot) (ExportUnit, error) {
	for _, name := range node.NamedRefs() {
		if _, err := snap.Resolve(schema.Named(name)); err != nil {
			return ExportUnit{}, &registry.UnresolvedReferenceError{From: node.Name, Name: name}
		}
	}

	if err := checkShape(node, snap); err != nil {
		return ExportUnit{}, err
	}

	decl, err := e.target.Declare(node, snap)
	if err != nil {
		return ExportUnit{}, err
	}

	ext := e.target.Extension()
	path := unitPath(node, ext)

	var imports []Import
	for _, name := range node.NamedRefs() {
		if name == node.Name {
			continue
		}
		dep, _ := snap.Node(name)
		imports = append(imports, Import{
			Name: name,
			From: importPath(path, unitPath(dep, ext), ext),
		})
	}
	sort.Slice(imports, func(i, j int) bool { return imports[i].Name < imports[j].Name })

	var b strings.Builder
	b.WriteString(e.target.Header(e.opts.ToolName, e.opts.ToolVersion, snap.Version()))
	if block := e.target.ImportBlock(imports); block != "" {
		b.WriteString("\n")
		b.WriteString(block)
	}
	b.WriteString("\n")
	b.WriteString(decl)
	content := b.String()

	return ExportUnit{
		Name:         node.Name,
		Kind:         node.Kind,
		Path:         path,
		Imports:      imports,
		Dependencies: snap.Dependencies(node.Name),
		Generics:     append([]string(nil), node.Generics...),
		Recursive:    snap.IsRecursive(node.Name),
		Declaration:  decl,
		Content:      content,
		Digest:       registry.Digest([]byte(content)),
	}, nil
}

// Batch is the result of exporting a whole snapshot.
type Batch struct {
	Version string

	// Units holds the successfully exported units in registry order.
	Units []ExportUnit

	errs *multierror.Error
}

// Err returns every per-node failure, in registry order, or nil.
func (b *Batch) Err() error {
	return b.errs.ErrorOrNil()
}

// Failures returns the per-node errors.
func (b *Batch) Failures() []error {
	if b.errs == nil {
		return nil
	}
	return b.errs.Errors
}

// Unit returns the unit for a type name.
func (b *Batch) Unit(name string) (ExportUnit, bool) {
	for _, u := range b.Units {
		if u.Name == name {
			return u, true
		}
	}
	return ExportUnit{}, false
}

// ExportAll renders every node of snap in parallel. Units keep registry order
// regardless of scheduling. A node that fails with an UnsupportedShapeError
// does not stop the others; its error is recorded in the batch. An
// unresolved reference or a cancelled context aborts the run.
func (e *Exporter) ExportAll(ctx context.Context, snap *registry.Snapshot) (*Batch, error) {
	nodes := snap.AllNodes()
	units := make([]ExportUnit, len(nodes))
	failures := make([]error, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, node := range nodes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			unit, err := e.Export(node, snap)
			if err != nil {
				var unresolved *registry.UnresolvedReferenceError
				if errors.As(err, &unresolved) {
					return fmt.Errorf("export %s: %w", node.Name, err)
				}
				failures[i] = err
				return nil
			}

			units[i] = unit
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &Batch{Version: snap.Version()}
	for i := range nodes {
		if failures[i] != nil {
			batch.errs = multierror.Append(batch.errs, failures[i])
			continue
		}
		batch.Units = append(batch.Units, units[i])
	}

	e.logger.Debug().
		Str("version", snap.ShortVersion()).
		Int("units", len(batch.Units)).
		Int("failed", len(batch.Failures())).
		Msg("export complete")

	return batch, nil
}

// Bundle folds units into a single index file. Imports between bundled
// declarations are dropped since every type is in scope.
func (e *Exporter) Bundle(version string, units []ExportUnit) ExportUnit {
	var b strings.Builder
	b.WriteString(e.target.Header(e.opts.ToolName, e.opts.ToolVersion, version))

	names := make([]string, 0, len(units))
	for _, u := range units {
		b.WriteString("\n")
		b.WriteString(u.Declaration)
		names = append(names, u.Name)
	}
	sort.Strings(names)

	content := b.String()
	return ExportUnit{
		Name:         "index",
		Kind:         KindBundle,
		Path:         "index" + e.target.Extension(),
		Dependencies: names,
		Content:      content,
		Digest:       registry.Digest([]byte(content)),
	}
}

// Files returns the units to write for the configured layout.
func (e *Exporter) Files(batch *Batch) []ExportUnit {
	if e.opts.Layout == LayoutSingle {
		return []ExportUnit{e.Bundle(batch.Version, batch.Units)}
	}
	return batch.Units
}
