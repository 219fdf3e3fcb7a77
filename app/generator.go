// Package app contains the GeneratorService, which runs the schema pipeline:
// load a schema directory into a sealed snapshot, export it, write or check
// the generated bindings, and record published versions.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/schemagate/adapters/metrics"
	"github.com/artpar/schemagate/core/checker"
	"github.com/artpar/schemagate/core/exporter"
	"github.com/artpar/schemagate/core/output"
	"github.com/artpar/schemagate/core/registry"
	"github.com/artpar/schemagate/core/schema"
	"github.com/artpar/schemagate/ports"
)

// ErrNoSnapshot is returned when an operation needs a loaded snapshot.
var ErrNoSnapshot = errors.New("no schema snapshot loaded")

// ErrNoStore is returned by history operations when no store is configured.
var ErrNoStore = errors.New("snapshot history is not configured")

// ExportFailedError reports that at least one node could not be exported.
// Nothing is written when it is returned.
type ExportFailedError struct {
	Failures []error
}

func (e *ExportFailedError) Error() string {
	msg := fmt.Sprintf("%d type(s) could not be exported:", len(e.Failures))
	for _, f := range e.Failures {
		msg += "\n  - " + f.Error()
	}
	return msg
}

func (e *ExportFailedError) Unwrap() []error {
	return e.Failures
}

// Rendering is the in-memory result of exporting one snapshot.
type Rendering struct {
	Snapshot *registry.Snapshot
	Batch    *exporter.Batch
	Files    []exporter.ExportUnit
	Manifest *output.Manifest
}

// ExpectedFiles returns every file a generated directory should hold,
// manifest included.
func (r *Rendering) ExpectedFiles() ([]checker.ExpectedFile, error) {
	manifest, err := r.Manifest.Encode()
	if err != nil {
		return nil, err
	}
	files := checker.ExpectedFiles(r.Files)
	return append(files, checker.ExpectedFile{Path: output.ManifestName, Content: string(manifest)}), nil
}

// CheckRequest configures a consistency check.
type CheckRequest struct {
	// Base is the snapshot to compare against. Nil treats every type as added.
	Base *registry.Snapshot

	// Head is the candidate snapshot. Nil uses the current snapshot.
	Head *registry.Snapshot

	// Policy overrides the service policy when set.
	Policy *checker.Policy

	// DriftDir, when set, is compared against a fresh rendering of Head.
	DriftDir string

	// Runs > 1 re-exports Head that many times and compares the output.
	Runs int
}

// CheckReport is the outcome of a consistency check.
type CheckReport struct {
	BaseVersion string
	HeadVersion string
	Changes     []checker.SchemaChange
	Drift       *checker.DriftReport
	Breaking    bool

	// GateFailed is set when the policy's fail_when expression matched.
	GateFailed bool

	// Generated is the manifest found in the drift directory, nil when the
	// directory carries none.
	Generated *output.Manifest
}

// LeftOver reports whether path was written by an earlier generate run,
// as opposed to a file placed in the output directory by hand.
func (r *CheckReport) LeftOver(path string) bool {
	return r.Generated != nil && r.Generated.HasFile(path)
}

// Clean reports whether the check found neither changes nor drift.
func (r *CheckReport) Clean() bool {
	return len(r.Changes) == 0 && (r.Drift == nil || r.Drift.Clean())
}

// GeneratorService orchestrates the schema pipeline.
type GeneratorService struct {
	store   ports.SnapshotStore // optional
	clock   ports.Clock
	ids     ports.IDGenerator
	metrics *metrics.Collector // optional
	logger  zerolog.Logger

	mu        sync.RWMutex
	exporter  *exporter.Exporter
	policy    *checker.Policy
	current   *registry.Snapshot
	rendering *Rendering // cached rendering of current
}

// NewGeneratorService creates a generator service. store and m may be nil.
func NewGeneratorService(
	e *exporter.Exporter,
	store ports.SnapshotStore,
	clock ports.Clock,
	ids ports.IDGenerator,
	m *metrics.Collector,
	logger zerolog.Logger,
) *GeneratorService {
	return &GeneratorService{
		exporter: e,
		store:    store,
		clock:    clock,
		ids:      ids,
		metrics:  m,
		logger:   logger,
	}
}

// Exporter returns the exporter in use.
func (s *GeneratorService) Exporter() *exporter.Exporter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exporter
}

// SetExporter swaps the exporter, e.g. after a config reload.
func (s *GeneratorService) SetExporter(e *exporter.Exporter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exporter = e
	s.rendering = nil
}

// Policy returns the union policy used by checks that carry none.
func (s *GeneratorService) Policy() *checker.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// SetPolicy replaces the default union policy.
func (s *GeneratorService) SetPolicy(p *checker.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

// Current returns the most recently loaded snapshot, or nil.
func (s *GeneratorService) Current() *registry.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Load parses a schema directory, seals it, and makes it current.
func (s *GeneratorService) Load(ctx context.Context, dir string) (*registry.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := ReadSnapshot(dir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = snap
	s.rendering = nil
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SchemaTypes.Set(float64(snap.Len()))
	}

	s.logger.Info().
		Str("dir", dir).
		Int("types", snap.Len()).
		Str("version", snap.ShortVersion()).
		Msg("schema loaded")

	return snap, nil
}

// ReadSnapshot parses and seals a schema directory without making it
// current. Check uses it for a base taken from another checkout.
func ReadSnapshot(dir string) (*registry.Snapshot, error) {
	nodes, err := schema.ParseDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	snap, err := registry.Build(nodes)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	return snap, nil
}

// Render exports snap without writing anything. The rendering of the
// current snapshot is cached until the next Load or SetExporter.
func (s *GeneratorService) Render(ctx context.Context, snap *registry.Snapshot) (*Rendering, error) {
	if snap == nil {
		return nil, ErrNoSnapshot
	}

	s.mu.RLock()
	e := s.exporter
	if s.rendering != nil && s.rendering.Snapshot == snap {
		r := s.rendering
		s.mu.RUnlock()
		return r, nil
	}
	s.mu.RUnlock()

	start := time.Now()
	batch, err := e.ExportAll(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	s.observeExport(time.Since(start), snap, batch)

	if batch.Err() != nil {
		return nil, &ExportFailedError{Failures: batch.Failures()}
	}

	files := e.Files(batch)
	r := &Rendering{
		Snapshot: snap,
		Batch:    batch,
		Files:    files,
		Manifest: output.NewManifest(snap.Version(), e.Options(), batch.Units, files),
	}

	s.mu.Lock()
	if s.current == snap && s.exporter == e {
		s.rendering = r
	}
	s.mu.Unlock()

	return r, nil
}

// Generate renders snap and replaces outDir with the result. When any node
// fails to export, nothing is written.
func (s *GeneratorService) Generate(ctx context.Context, snap *registry.Snapshot, outDir string) (*Rendering, error) {
	r, err := s.Render(ctx, snap)
	if err != nil {
		return nil, err
	}

	if err := output.WriteDir(outDir, r.Files, r.Manifest); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("dir", outDir).
		Int("files", len(r.Files)).
		Str("version", snap.ShortVersion()).
		Msg("bindings written")

	return r, nil
}

// Check compares req.Base with req.Head and optionally verifies the
// generated directory and export determinism. The snapshots are not changed.
func (s *GeneratorService) Check(ctx context.Context, req CheckRequest) (*CheckReport, error) {
	head := req.Head
	if head == nil {
		head = s.Current()
	}
	if head == nil {
		return nil, ErrNoSnapshot
	}

	policy := req.Policy
	if policy == nil {
		policy = s.Policy()
	}

	report := &CheckReport{
		HeadVersion: head.Version(),
		Changes:     checker.Diff(req.Base, head, policy),
	}
	if req.Base != nil {
		report.BaseVersion = req.Base.Version()
	}
	report.Breaking = checker.HasBreaking(report.Changes)

	gated, err := policy.Gate(report.Changes)
	if err != nil {
		return nil, err
	}
	report.GateFailed = gated

	if req.DriftDir != "" {
		r, err := s.Render(ctx, head)
		if err != nil {
			return nil, err
		}
		expected, err := r.ExpectedFiles()
		if err != nil {
			return nil, err
		}
		report.Drift, err = checker.DetectDrift(req.DriftDir, expected)
		if err != nil {
			return nil, err
		}
		if m, err := output.ReadManifest(req.DriftDir); err == nil {
			report.Generated = m
		} else if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("dir", req.DriftDir).Msg("unreadable output manifest")
		}
	}

	if req.Runs > 1 {
		if err := checker.VerifyDeterministic(ctx, s.Exporter(), head, req.Runs); err != nil {
			return nil, err
		}
	}

	s.observeCheck(report)

	s.logger.Info().
		Str("base", report.BaseVersion).
		Str("head", report.HeadVersion).
		Int("changes", len(report.Changes)).
		Bool("breaking", report.Breaking).
		Msg("consistency check complete")

	return report, nil
}

// Publish records snap in the history under label.
func (s *GeneratorService) Publish(ctx context.Context, snap *registry.Snapshot, label string) (ports.PublishedSnapshot, error) {
	if s.store == nil {
		return ports.PublishedSnapshot{}, ErrNoStore
	}
	if snap == nil {
		return ports.PublishedSnapshot{}, ErrNoSnapshot
	}

	data, err := snap.Encode()
	if err != nil {
		return ports.PublishedSnapshot{}, err
	}

	published := ports.PublishedSnapshot{
		ID:        s.ids.New(),
		Version:   snap.Version(),
		Label:     label,
		Data:      data,
		TypeCount: snap.Len(),
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.Save(ctx, published); err != nil {
		return ports.PublishedSnapshot{}, fmt.Errorf("publish %s: %w", snap.ShortVersion(), err)
	}

	s.logger.Info().
		Str("id", published.ID).
		Str("version", snap.ShortVersion()).
		Str("label", label).
		Msg("snapshot published")

	return published, nil
}

// History lists published snapshots, newest first.
func (s *GeneratorService) History(ctx context.Context, limit int) ([]ports.PublishedSnapshot, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.List(ctx, limit)
}

// Published loads a published snapshot by version or version prefix.
// The special version "latest" selects the most recent one.
func (s *GeneratorService) Published(ctx context.Context, version string) (*registry.Snapshot, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}

	var (
		rec ports.PublishedSnapshot
		err error
	)
	if version == "latest" {
		rec, err = s.store.Latest(ctx)
	} else {
		rec, err = s.store.Get(ctx, version)
	}
	if err != nil {
		return nil, fmt.Errorf("published snapshot %s: %w", version, err)
	}

	snap, err := registry.Decode(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", rec.Version, err)
	}
	if snap.Version() != rec.Version {
		return nil, fmt.Errorf("snapshot %s decodes to version %s", rec.Version, snap.Version())
	}
	return snap, nil
}

func (s *GeneratorService) observeExport(elapsed time.Duration, snap *registry.Snapshot, batch *exporter.Batch) {
	if s.metrics == nil {
		return
	}

	kinds := make([]string, 0, len(batch.Units))
	for _, u := range batch.Units {
		kinds = append(kinds, string(u.Kind))
	}

	var failures []string
	for _, err := range batch.Failures() {
		var shape *exporter.UnsupportedShapeError
		if errors.As(err, &shape) {
			failures = append(failures, "unsupported_shape")
		} else {
			failures = append(failures, "other")
		}
	}

	s.metrics.ObserveExport(elapsed, snap.Len(), kinds, failures)
}

func (s *GeneratorService) observeCheck(report *CheckReport) {
	if s.metrics == nil {
		return
	}

	classifications := make([]string, 0, len(report.Changes))
	for _, c := range report.Changes {
		classifications = append(classifications, c.Classification())
	}

	var drift map[string]int
	if report.Drift != nil {
		drift = map[string]int{
			string(checker.DriftMissing):  report.Drift.Count(checker.DriftMissing),
			string(checker.DriftModified): report.Drift.Count(checker.DriftModified),
			string(checker.DriftStale):    report.Drift.Count(checker.DriftStale),
		}
	}

	s.metrics.ObserveCheck(classifications, report.Breaking, drift)
}
