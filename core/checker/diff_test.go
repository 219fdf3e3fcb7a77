package checker

import (
	"strings"
	"testing"

	"github.com/artpar/schemagate/core/registry"
	"github.com/artpar/schemagate/core/schema"
)

func snapshot(t *testing.T, src string) *registry.Snapshot {
	t.Helper()

	doc, err := schema.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	snap, err := registry.Build(doc.Types)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return snap
}

func classifications(changes []SchemaChange) string {
	parts := make([]string, len(changes))
	for i, c := range changes {
		parts[i] = c.Classification() + " " + c.Subject()
	}
	return strings.Join(parts, "; ")
}

func TestDiff_FieldAdded(t *testing.T) {
	base := snapshot(t, `
types:
  - name: Foo
    kind: struct
    fields:
      - { name: a, type: u32 }
`)

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "required",
			src: `
types:
  - name: Foo
    kind: struct
    fields:
      - { name: a, type: u32 }
      - { name: b, type: string }
`,
			want: "FieldAddedBreaking Foo.b",
		},
		{
			name: "optional",
			src: `
types:
  - name: Foo
    kind: struct
    fields:
      - { name: a, type: u32 }
      - { name: b, type: string, optional: true }
`,
			want: "FieldAddedCompatible Foo.b",
		},
		{
			name: "nullable",
			src: `
types:
  - name: Foo
    kind: struct
    fields:
      - { name: a, type: u32 }
      - { name: b, type: "Option<string>" }
`,
			want: "FieldAddedCompatible Foo.b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := Diff(base, snapshot(t, tt.src), nil)
			if got := classifications(changes); got != tt.want {
				t.Errorf("changes = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDiff_Identical(t *testing.T) {
	src := `
types:
  - name: Foo
    kind: struct
    fields:
      - { name: a, type: u32 }
`
	if changes := Diff(snapshot(t, src), snapshot(t, src), nil); len(changes) != 0 {
		t.Errorf("identical snapshots produced changes: %s", classifications(changes))
	}
}

func TestDiff_AddedRemovedOrdering(t *testing.T) {
	base := snapshot(t, `
types:
  - name: Gone
    kind: struct
    fields:
      - { name: x, type: u8 }
  - name: Kept
    kind: struct
    fields:
      - { name: x, type: u8 }
  - name: AlsoGone
    kind: struct
    fields:
      - { name: x, type: u8 }
`)
	head := snapshot(t, `
types:
  - name: Fresh
    kind: struct
    fields:
      - { name: x, type: u8 }
  - name: Kept
    kind: struct
    fields:
      - { name: x, type: u16 }
`)

	want := "AddedCompatible Fresh; FieldTypeChangedBreaking Kept.x; RemovedBreaking Gone; RemovedBreaking AlsoGone"
	if got := classifications(Diff(base, head, nil)); got != want {
		t.Errorf("changes =\n%s\nwant\n%s", got, want)
	}
}

func TestDiff_NilBase(t *testing.T) {
	head := snapshot(t, `
types:
  - name: Foo
    kind: struct
    fields:
      - { name: a, type: u32 }
`)
	if got := classifications(Diff(nil, head, nil)); got != "AddedCompatible Foo" {
		t.Errorf("changes = %s", got)
	}
}

func TestDiff_Fields(t *testing.T) {
	base := snapshot(t, `
types:
  - name: Tx
    kind: struct
    fields:
      - { name: id, type: string }
      - { name: fee, type: u64 }
      - { name: memo, type: string, optional: true }
      - { name: sender, type: string }
      - { name: legacy, type: bool }
`)
	head := snapshot(t, `
types:
  - name: Tx
    kind: struct
    fields:
      - { name: fee, type: u64 }
      - { name: id, type: string }
      - { name: memo, type: string }
      - { name: from, type: string, renamed_from: sender }
`)

	changes := Diff(base, head, nil)
	want := "FieldTypeChangedBreaking Tx.memo; FieldRenamedBreaking Tx.from; FieldRemovedBreaking Tx.legacy; FieldReorderedBreaking Tx"
	if got := classifications(changes); got != want {
		t.Errorf("changes =\n%s\nwant\n%s", got, want)
	}

	if changes[0].Detail != "field became required" {
		t.Errorf("memo detail = %q", changes[0].Detail)
	}
	if changes[1].Old != "sender" || changes[1].New != "from" {
		t.Errorf("rename = %s -> %s", changes[1].Old, changes[1].New)
	}
}

func TestDiff_WideningIsBreaking(t *testing.T) {
	base := snapshot(t, `
types:
  - name: Foo
    kind: struct
    fields:
      - { name: a, type: u32 }
`)
	head := snapshot(t, `
types:
  - name: Foo
    kind: struct
    fields:
      - { name: a, type: u32, optional: true }
`)

	changes := Diff(base, head, nil)
	if got := classifications(changes); got != "FieldTypeChangedBreaking Foo.a" {
		t.Errorf("changes = %s", got)
	}
}

func TestDiff_Variants(t *testing.T) {
	base := snapshot(t, `
types:
  - name: Command
    kind: tagged-union
    variants:
      - { tag: Prepare, payload: string }
      - { tag: Accept, payload: string }
      - { tag: EndEpoch }
`)

	head := `
types:
  - name: Command
    kind: tagged-union
    variants:
      - { tag: Prepare, payload: string }
      - { tag: Accept, payload: u64 }
      - { tag: EndEpoch }
      - { tag: LocalOnly, payload: string }
`

	tests := []struct {
		name   string
		policy *Policy
		added  string
		detail string
	}{
		{"no policy", nil, "VariantAddedBreaking", "union has no recorded policy; treated as exhaustive"},
		{"exhaustive", &Policy{Unions: map[string]UnionPolicy{"Command": UnionExhaustive}}, "VariantAddedBreaking", "union is exhaustive"},
		{"open", &Policy{Unions: map[string]UnionPolicy{"Command": UnionOpen}}, "VariantAddedCompatible", "union is open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := Diff(base, snapshot(t, head), tt.policy)
			want := "VariantPayloadChangedBreaking Command.Accept; " + tt.added + " Command.LocalOnly"
			if got := classifications(changes); got != want {
				t.Fatalf("changes =\n%s\nwant\n%s", got, want)
			}
			if changes[1].Detail != tt.detail {
				t.Errorf("detail = %q, want %q", changes[1].Detail, tt.detail)
			}
		})
	}
}

func TestDiff_VariantRemovedAndReordered(t *testing.T) {
	base := snapshot(t, `
types:
  - name: Decision
    kind: tagged-union
    variants:
      - { tag: Commit }
      - { tag: Abort }
      - { tag: Deferred }
`)
	head := snapshot(t, `
types:
  - name: Decision
    kind: tagged-union
    variants:
      - { tag: Abort }
      - { tag: Commit }
`)

	want := "VariantRemovedBreaking Decision.Deferred; VariantReorderedBreaking Decision"
	if got := classifications(Diff(base, head, nil)); got != want {
		t.Errorf("changes = %s, want %s", got, want)
	}
}

func TestDiff_StructVariantFields(t *testing.T) {
	base := snapshot(t, `
types:
  - name: Event
    kind: tagged-union
    variants:
      - tag: Transfer
        fields:
          - { name: amount, type: u64 }
`)
	head := snapshot(t, `
types:
  - name: Event
    kind: tagged-union
    variants:
      - tag: Transfer
        fields:
          - { name: amount, type: u64 }
          - { name: memo, type: string, optional: true }
`)

	if got := classifications(Diff(base, head, nil)); got != "FieldAddedCompatible Event.Transfer.memo" {
		t.Errorf("changes = %s", got)
	}
}

func TestDiff_NodeLevelChanges(t *testing.T) {
	base := snapshot(t, `
types:
  - name: Amount
    kind: primitive-wrapper
    type: u64
  - name: Node
    kind: struct
    generics: [TAddr]
    fields:
      - { name: addr, type: string }
  - name: Status
    kind: tagged-union
    variants:
      - { tag: Up }
  - name: Shape
    kind: struct
    fields:
      - { name: a, type: u8 }
  - name: OldName
    kind: struct
    fields:
      - { name: a, type: u8 }
  - name: Legacy
    kind: struct
    fields:
      - { name: a, type: u8 }
`)
	head := snapshot(t, `
types:
  - name: Amount
    kind: primitive-wrapper
    type: u128
  - name: Node
    kind: struct
    generics: [TAddr, TKey]
    fields:
      - { name: addr, type: string }
  - name: Status
    kind: tagged-union
    tagging: internal
    variants:
      - { tag: Up }
  - name: Shape
    kind: alias
    type: u8
  - name: NewName
    kind: struct
    renamed_from: OldName
    fields:
      - { name: a, type: u8 }
  - name: Legacy
    kind: struct
    retired: true
    fields:
      - { name: a, type: u8 }
`)

	want := strings.Join([]string{
		"TargetChangedBreaking Amount",
		"GenericsChangedBreaking Node",
		"TaggingChangedBreaking Status",
		"KindChangedBreaking Shape",
		"RenamedBreaking NewName",
		"RetiredCompatible Legacy",
	}, "; ")
	if got := classifications(Diff(base, head, nil)); got != want {
		t.Errorf("changes =\n%s\nwant\n%s", got, want)
	}
}

func TestSchemaChange_String(t *testing.T) {
	c := SchemaChange{
		Kind: FieldAdded, Type: "Foo", Member: "b",
		New: "string", Breaking: true, Detail: "required field added",
	}
	want := "FieldAddedBreaking Foo.b (- -> string): required field added"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBreakingChanges(t *testing.T) {
	changes := []SchemaChange{
		{Kind: Added, Type: "A"},
		{Kind: Removed, Type: "B", Breaking: true},
	}
	if !HasBreaking(changes) {
		t.Error("HasBreaking() = false")
	}
	if got := BreakingChanges(changes); len(got) != 1 || got[0].Type != "B" {
		t.Errorf("BreakingChanges() = %+v", got)
	}
	if HasBreaking(changes[:1]) {
		t.Error("HasBreaking() should be false for compatible changes")
	}
}
