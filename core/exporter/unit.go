package exporter

import (
	"fmt"

	"github.com/artpar/schemagate/core/schema"
)

// KindBundle marks the unit produced by the single-file layout.
const KindBundle schema.Kind = "bundle"

// ExportUnit is one generated declaration file derived from one TypeNode.
type ExportUnit struct {
	Name string
	Kind schema.Kind

	// Path is relative to the output directory, slash separated.
	Path string

	// Imports are the types the declaration names directly, sorted by name.
	Imports []Import

	// Dependencies is every type transitively reachable, sorted by name.
	Dependencies []string

	// Generics are the declared parameters in declaration order.
	Generics []string

	Recursive bool

	// Declaration is the declaration text without header or imports.
	Declaration string

	// Content is the complete file.
	Content string

	// Digest is the hex BLAKE2b-256 of Content.
	Digest string
}

// Import is one imported type and the module path it is imported from,
// relative to the importing file.
type Import struct {
	Name string
	From string
}

// UnsupportedShapeError reports a type the target cannot represent.
type UnsupportedShapeError struct {
	Name   string
	Reason string
}

func (e *UnsupportedShapeError) Error() string {
	return fmt.Sprintf("type %q: unsupported shape: %s", e.Name, e.Reason)
}

func unsupported(name, format string, args ...any) *UnsupportedShapeError {
	return &UnsupportedShapeError{Name: name, Reason: fmt.Sprintf(format, args...)}
}
