package schema

// TypeNode is a single canonical type definition.
type TypeNode struct {
	// Name is unique within a registry.
	Name string `yaml:"name"`

	// Kind selects which of Fields, Variants or Target is meaningful.
	Kind Kind `yaml:"kind"`

	// Doc is emitted as a doc comment on the declaration.
	Doc string `yaml:"doc,omitempty"`

	// Generics lists the declared type parameters in order. Parameters are
	// kept even when no field uses them.
	Generics []string `yaml:"generics,omitempty"`

	// Fields of a struct, in wire order.
	Fields []FieldSpec `yaml:"fields,omitempty"`

	// Variants of a tagged union, in declaration order.
	Variants []VariantSpec `yaml:"variants,omitempty"`

	// Target is the aliased type of an alias or primitive wrapper.
	Target *TypeRef `yaml:"type,omitempty"`

	// Tagging is the wire representation of a tagged union.
	Tagging Tagging `yaml:"tagging,omitempty"`

	// TagKey names the discriminator property for internal and adjacent tagging.
	TagKey string `yaml:"tag_key,omitempty"`

	// ContentKey names the payload property for adjacent tagging.
	ContentKey string `yaml:"content_key,omitempty"`

	// ExportTo is a relative sub-directory for the generated file.
	ExportTo string `yaml:"export_to,omitempty"`

	// RenamedFrom records an explicit rename migration.
	RenamedFrom string `yaml:"renamed_from,omitempty"`

	// Retired nodes are still exported but must not be referenced by live nodes.
	Retired bool `yaml:"retired,omitempty"`
}

// Kind is the shape of a TypeNode.
type Kind string

const (
	KindStruct  Kind = "struct"
	KindUnion   Kind = "tagged-union"
	KindAlias   Kind = "alias"
	KindWrapper Kind = "primitive-wrapper"
)

var kindAliases = map[string]Kind{
	"union":   KindUnion,
	"enum":    KindUnion,
	"wrapper": KindWrapper,
	"newtype": KindWrapper,
}

// Tagging is how a tagged union discriminates its variants on the wire.
type Tagging string

const (
	// TaggingExternal: "Unit" | { Tag: payload }
	TaggingExternal Tagging = "external"
	// TaggingInternal: { <tag_key>: "Tag", ...payload fields }
	TaggingInternal Tagging = "internal"
	// TaggingAdjacent: { <tag_key>: "Tag", <content_key>: payload }
	TaggingAdjacent Tagging = "adjacent"
)

const (
	DefaultTagKey     = "type"
	DefaultContentKey = "content"
)

// VariantSpec is one case of a tagged union.
type VariantSpec struct {
	// Tag is part of the wire contract and is emitted verbatim.
	Tag string `yaml:"tag"`

	// Payload is the tuple-style payload type. Nil for unit variants.
	Payload *TypeRef `yaml:"payload,omitempty"`

	// Fields is the struct-style payload. Mutually exclusive with Payload.
	Fields []FieldSpec `yaml:"fields,omitempty"`

	Doc string `yaml:"doc,omitempty"`
}

// IsUnit reports whether the variant carries no payload.
func (v VariantSpec) IsUnit() bool {
	return v.Payload == nil && len(v.Fields) == 0
}

// IsGeneric reports whether name is a declared type parameter of the node.
func (n TypeNode) IsGeneric(name string) bool {
	for _, g := range n.Generics {
		if g == name {
			return true
		}
	}
	return false
}

// Field returns the field with the given name.
func (n TypeNode) Field(name string) (FieldSpec, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Variant returns the variant with the given tag.
func (n TypeNode) Variant(tag string) (VariantSpec, bool) {
	for _, v := range n.Variants {
		if v.Tag == tag {
			return v, true
		}
	}
	return VariantSpec{}, false
}

// Refs returns every type reference the node contains, in declaration order.
// Container arguments are not flattened; use TypeRef.Walk for that.
func (n TypeNode) Refs() []TypeRef {
	var refs []TypeRef
	for _, f := range n.Fields {
		refs = append(refs, f.Type)
	}
	for _, v := range n.Variants {
		if v.Payload != nil {
			refs = append(refs, *v.Payload)
		}
		for _, f := range v.Fields {
			refs = append(refs, f.Type)
		}
	}
	if n.Target != nil {
		refs = append(refs, *n.Target)
	}
	return refs
}

// NamedRefs returns the names of all nodes referenced anywhere in n,
// deduplicated, in first-occurrence order.
func (n TypeNode) NamedRefs() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ref := range n.Refs() {
		ref.Walk(func(r TypeRef) {
			if r.Kind == RefNamed && !seen[r.Name] {
				seen[r.Name] = true
				names = append(names, r.Name)
			}
		})
	}
	return names
}

// Normalize resolves shorthands and defaults so that two equivalent
// definitions have an identical representation.
func (n TypeNode) Normalize() TypeNode {
	if k, ok := kindAliases[string(n.Kind)]; ok {
		n.Kind = k
	}

	n.Generics = cloneStrings(n.Generics)
	n.Fields = n.normalizeFields(n.Fields)

	if len(n.Variants) == 0 {
		n.Variants = nil
	} else {
		variants := make([]VariantSpec, len(n.Variants))
		for i, v := range n.Variants {
			if v.Payload != nil {
				p := n.bind(*v.Payload)
				if p.Kind == RefUnit && !p.Nullable {
					v.Payload = nil
				} else {
					v.Payload = &p
				}
			}
			v.Fields = n.normalizeFields(v.Fields)
			variants[i] = v
		}
		n.Variants = variants
	}

	if n.Target != nil {
		t := n.bind(*n.Target)
		n.Target = &t
	}

	if n.Kind == KindUnion {
		if n.Tagging == "" {
			n.Tagging = TaggingExternal
		}
		if n.Tagging != TaggingExternal && n.TagKey == "" {
			n.TagKey = DefaultTagKey
		}
		if n.Tagging == TaggingAdjacent && n.ContentKey == "" {
			n.ContentKey = DefaultContentKey
		}
	}

	return n
}

func (n TypeNode) normalizeFields(fields []FieldSpec) []FieldSpec {
	if len(fields) == 0 {
		return nil
	}
	out := make([]FieldSpec, len(fields))
	for i, f := range fields {
		f.Type = n.bind(f.Type)
		f.Nullable = f.Nullable || f.Type.Nullable
		f.Type.Nullable = f.Nullable
		out[i] = f
	}
	return out
}

// bind marks bare identifiers that name a declared generic parameter.
func (n TypeNode) bind(ref TypeRef) TypeRef {
	if ref.Kind == RefNamed && len(ref.Args) == 0 && n.IsGeneric(ref.Name) {
		ref.Kind = RefParam
	}
	if len(ref.Args) == 0 {
		ref.Args = nil
		return ref
	}
	args := make([]TypeRef, len(ref.Args))
	for i, a := range ref.Args {
		args[i] = n.bind(a)
	}
	ref.Args = args
	return ref
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
