package exporter

import (
	"fmt"
	"runtime"
)

// Layout selects how units map to files.
type Layout string

const (
	// LayoutPerType writes one file per type at [export_to/]Name.ext.
	LayoutPerType Layout = "per-type"
	// LayoutSingle folds every declaration into one index file.
	LayoutSingle Layout = "single"
)

// OptionalStyle selects how optional fields are declared.
type OptionalStyle string

const (
	// OptionalQuestion renders `name?: T`.
	OptionalQuestion OptionalStyle = "question"
	// OptionalUndefined renders `name: T | undefined`.
	OptionalUndefined OptionalStyle = "undefined"
)

// IntegerStyle selects the target type for integers wider than 53 bits.
type IntegerStyle string

const (
	IntegerNumber IntegerStyle = "number"
	IntegerBigInt IntegerStyle = "bigint"
	IntegerString IntegerStyle = "string"
)

// TargetTypeScript is the name of the TypeScript target.
const TargetTypeScript = "typescript"

// Options configures an Exporter. The zero value is not valid; start from
// DefaultOptions.
type Options struct {
	Target   string
	Layout   Layout
	Optional OptionalStyle
	Integers IntegerStyle

	// Workers bounds ExportAll parallelism. Zero means GOMAXPROCS.
	Workers int

	// ToolName and ToolVersion appear in the provenance header.
	ToolName    string
	ToolVersion string
}

// DefaultOptions returns the default export options.
func DefaultOptions() Options {
	return Options{
		Target:      TargetTypeScript,
		Layout:      LayoutPerType,
		Optional:    OptionalQuestion,
		Integers:    IntegerNumber,
		ToolName:    "schemagate",
		ToolVersion: "dev",
	}
}

// Validate checks option values and fills in derived defaults.
func (o *Options) Validate() error {
	if o.Target == "" {
		o.Target = TargetTypeScript
	}
	if o.Target != TargetTypeScript {
		return fmt.Errorf("unknown target %q", o.Target)
	}

	switch o.Layout {
	case "":
		o.Layout = LayoutPerType
	case LayoutPerType, LayoutSingle:
	default:
		return fmt.Errorf("unknown layout %q (want per-type or single)", o.Layout)
	}

	switch o.Optional {
	case "":
		o.Optional = OptionalQuestion
	case OptionalQuestion, OptionalUndefined:
	default:
		return fmt.Errorf("unknown optional style %q (want question or undefined)", o.Optional)
	}

	switch o.Integers {
	case "":
		o.Integers = IntegerNumber
	case IntegerNumber, IntegerBigInt, IntegerString:
	default:
		return fmt.Errorf("unknown integer style %q (want number, bigint or string)", o.Integers)
	}

	if o.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if o.Workers == 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}

	if o.ToolName == "" {
		o.ToolName = "schemagate"
	}
	if o.ToolVersion == "" {
		o.ToolVersion = "dev"
	}

	return nil
}
