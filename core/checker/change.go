// Package checker compares schema versions and generated output.
//
// Diff classifies every difference between two snapshots as breaking or
// compatible, DetectDrift compares regenerated files with what is on disk,
// and VerifyDeterministic re-runs an export to prove it is reproducible.
// The checker only reports; it never modifies a snapshot or a file.
package checker

import (
	"fmt"
	"strings"
)

// ChangeKind classifies a schema change.
type ChangeKind string

const (
	Added                 ChangeKind = "Added"
	Removed               ChangeKind = "Removed"
	Renamed               ChangeKind = "Renamed"
	Retired               ChangeKind = "Retired"
	KindChanged           ChangeKind = "KindChanged"
	GenericsChanged       ChangeKind = "GenericsChanged"
	TargetChanged         ChangeKind = "TargetChanged"
	TaggingChanged        ChangeKind = "TaggingChanged"
	FieldAdded            ChangeKind = "FieldAdded"
	FieldRemoved          ChangeKind = "FieldRemoved"
	FieldRenamed          ChangeKind = "FieldRenamed"
	FieldTypeChanged      ChangeKind = "FieldTypeChanged"
	FieldReordered        ChangeKind = "FieldReordered"
	VariantAdded          ChangeKind = "VariantAdded"
	VariantRemoved        ChangeKind = "VariantRemoved"
	VariantPayloadChanged ChangeKind = "VariantPayloadChanged"
	VariantReordered      ChangeKind = "VariantReordered"
)

// SchemaChange is one classified difference between two snapshots.
type SchemaChange struct {
	Kind ChangeKind `json:"kind"`

	// Type is the affected type name in the newer snapshot, or the older
	// one for removals.
	Type string `json:"type"`

	// Member is the field name or variant tag, if any.
	Member string `json:"member,omitempty"`

	Old string `json:"old,omitempty"`
	New string `json:"new,omitempty"`

	Breaking bool   `json:"breaking"`
	Detail   string `json:"detail,omitempty"`
}

// Classification renders the kind with its compatibility, for example
// "FieldAddedBreaking" or "VariantAddedCompatible".
func (c SchemaChange) Classification() string {
	if c.Breaking {
		return string(c.Kind) + "Breaking"
	}
	return string(c.Kind) + "Compatible"
}

// Subject is "Type" or "Type.Member".
func (c SchemaChange) Subject() string {
	if c.Member == "" {
		return c.Type
	}
	return c.Type + "." + c.Member
}

func (c SchemaChange) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", c.Classification(), c.Subject())
	if c.Old != "" || c.New != "" {
		fmt.Fprintf(&b, " (%s -> %s)", orDash(c.Old), orDash(c.New))
	}
	if c.Detail != "" {
		b.WriteString(": " + c.Detail)
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// BreakingChanges filters changes down to the breaking ones.
func BreakingChanges(changes []SchemaChange) []SchemaChange {
	var out []SchemaChange
	for _, c := range changes {
		if c.Breaking {
			out = append(out, c)
		}
	}
	return out
}

// HasBreaking reports whether any change is breaking.
func HasBreaking(changes []SchemaChange) bool {
	for _, c := range changes {
		if c.Breaking {
			return true
		}
	}
	return false
}
