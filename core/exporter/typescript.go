package exporter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/schemagate/core/registry"
	"github.com/artpar/schemagate/core/schema"
)

// Target renders declarations for one target language.
type Target interface {
	Name() string

	// Extension is the file extension including the dot.
	Extension() string

	// Header renders the provenance comment that opens every file.
	Header(tool, toolVersion, schemaVersion string) string

	// ImportBlock renders the import statements of one file.
	ImportBlock(imports []Import) string

	// Declare renders the declaration of node.
	Declare(node schema.TypeNode, snap *registry.Snapshot) (string, error)
}

// TypeScript renders type-only TypeScript declarations.
type TypeScript struct {
	optional OptionalStyle
	integers IntegerStyle
}

// NewTypeScript creates the TypeScript target.
func NewTypeScript(optional OptionalStyle, integers IntegerStyle) *TypeScript {
	return &TypeScript{optional: optional, integers: integers}
}

func (t *TypeScript) Name() string      { return TargetTypeScript }
func (t *TypeScript) Extension() string { return ".ts" }

func (t *TypeScript) Header(tool, toolVersion, schemaVersion string) string {
	return fmt.Sprintf("// This file was generated by %s (v%s). Do not edit this file manually.\n// Schema version: %s\n",
		tool, strings.TrimPrefix(toolVersion, "v"), schemaVersion)
}

func (t *TypeScript) ImportBlock(imports []Import) string {
	var b strings.Builder
	for _, imp := range imports {
		fmt.Fprintf(&b, "import type { %s } from %q;\n", imp.Name, imp.From)
	}
	return b.String()
}

func (t *TypeScript) Declare(node schema.TypeNode, snap *registry.Snapshot) (string, error) {
	r := &tsRenderer{ts: t, node: node, snap: snap}

	var body string
	var err error
	switch node.Kind {
	case schema.KindStruct:
		body, err = r.object(node.Fields, "")
	case schema.KindUnion:
		body, err = r.union()
	case schema.KindAlias, schema.KindWrapper:
		body, err = r.expr(*node.Target)
	default:
		err = unsupported(node.Name, "unknown kind %q", node.Kind)
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	writeDoc(&b, node.Doc, "")
	b.WriteString("export type ")
	b.WriteString(node.Name)
	if len(node.Generics) > 0 {
		b.WriteString("<" + strings.Join(node.Generics, ", ") + ">")
	}
	b.WriteString(" =")
	if !strings.HasPrefix(body, "\n") {
		b.WriteString(" ")
	}
	b.WriteString(body)
	b.WriteString(";\n")
	return b.String(), nil
}

// tsRenderer renders one node.
type tsRenderer struct {
	ts   *TypeScript
	node schema.TypeNode
	snap *registry.Snapshot
}

// object renders a multi-line object type. indent is the indentation of the
// opening brace's line.
func (r *tsRenderer) object(fields []schema.FieldSpec, indent string) (string, error) {
	if len(fields) == 0 {
		return "Record<string, never>", nil
	}

	var b strings.Builder
	b.WriteString("{\n")
	inner := indent + "  "
	for _, f := range fields {
		member, err := r.member(f)
		if err != nil {
			return "", err
		}
		writeDoc(&b, f.Doc, inner)
		b.WriteString(inner + member + ";\n")
	}
	b.WriteString(indent + "}")
	return b.String(), nil
}

// inlineObject renders fields on one line, with extra leading members.
func (r *tsRenderer) inlineObject(lead []string, fields []schema.FieldSpec) (string, error) {
	members := append([]string(nil), lead...)
	for _, f := range fields {
		m, err := r.member(f)
		if err != nil {
			return "", err
		}
		members = append(members, m)
	}
	if len(members) == 0 {
		return "Record<string, never>", nil
	}
	return "{ " + strings.Join(members, "; ") + " }", nil
}

// member renders `key: T` honoring optionality and nullability.
func (r *tsRenderer) member(f schema.FieldSpec) (string, error) {
	var typ string
	if f.Override != "" {
		typ = f.Override
	} else {
		var err error
		typ, err = r.expr(f.Type)
		if err != nil {
			return "", err
		}
	}

	key := propertyKey(f.Name)
	if !f.Optional {
		return key + ": " + typ, nil
	}
	if r.ts.optional == OptionalUndefined {
		return key + ": " + typ + " | undefined", nil
	}
	return key + "?: " + typ, nil
}

func (r *tsRenderer) union() (string, error) {
	n := r.node
	if len(n.Variants) == 0 {
		return "never", nil
	}

	cases := make([]string, 0, len(n.Variants))
	for _, v := range n.Variants {
		c, err := r.variant(v)
		if err != nil {
			return "", err
		}
		cases = append(cases, c)
	}

	var b strings.Builder
	for _, c := range cases {
		b.WriteString("\n  | " + c)
	}
	return b.String(), nil
}

func (r *tsRenderer) variant(v schema.VariantSpec) (string, error) {
	n := r.node
	tag := strconv.Quote(v.Tag)

	switch n.Tagging {
	case schema.TaggingInternal:
		lead := []string{propertyKey(n.TagKey) + ": " + tag}
		if v.Payload != nil {
			payload, err := r.expr(*v.Payload)
			if err != nil {
				return "", err
			}
			return "({ " + lead[0] + " } & " + payload + ")", nil
		}
		return r.inlineObject(lead, v.Fields)

	case schema.TaggingAdjacent:
		lead := propertyKey(n.TagKey) + ": " + tag
		if v.IsUnit() {
			return "{ " + lead + " }", nil
		}
		content, err := r.payload(v)
		if err != nil {
			return "", err
		}
		return "{ " + lead + "; " + propertyKey(n.ContentKey) + ": " + content + " }", nil

	default:
		if v.IsUnit() {
			return tag, nil
		}
		content, err := r.payload(v)
		if err != nil {
			return "", err
		}
		return "{ " + propertyKey(v.Tag) + ": " + content + " }", nil
	}
}

func (r *tsRenderer) payload(v schema.VariantSpec) (string, error) {
	if v.Payload != nil {
		return r.expr(*v.Payload)
	}
	return r.inlineObject(nil, v.Fields)
}

// expr renders a type expression.
func (r *tsRenderer) expr(ref schema.TypeRef) (string, error) {
	s, err := r.base(ref)
	if err != nil {
		return "", err
	}
	if ref.Nullable {
		s += " | null"
	}
	return s, nil
}

func (r *tsRenderer) base(ref schema.TypeRef) (string, error) {
	switch ref.Kind {
	case schema.RefPrimitive:
		return r.ts.primitive(ref.Name), nil

	case schema.RefParam:
		return ref.Name, nil

	case schema.RefUnit:
		return "null", nil

	case schema.RefNamed:
		if len(ref.Args) == 0 {
			return ref.Name, nil
		}
		args, err := r.list(ref.Args)
		if err != nil {
			return "", err
		}
		return ref.Name + "<" + strings.Join(args, ", ") + ">", nil

	case schema.RefList:
		elem, err := r.expr(ref.Args[0])
		if err != nil {
			return "", err
		}
		return "Array<" + elem + ">", nil

	case schema.RefMap:
		return r.mapType(ref.Args[0], ref.Args[1])

	case schema.RefTuple:
		items, err := r.list(ref.Args)
		if err != nil {
			return "", err
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	}

	return "", unsupported(r.node.Name, "unknown reference kind %q", ref.Kind)
}

func (r *tsRenderer) list(refs []schema.TypeRef) ([]string, error) {
	out := make([]string, len(refs))
	for i, a := range refs {
		s, err := r.expr(a)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// mapType renders a map. Keys must serialize as JSON object keys.
func (r *tsRenderer) mapType(key, value schema.TypeRef) (string, error) {
	class, err := r.keyClass(key)
	if err != nil {
		return "", err
	}

	k, err := r.base(key)
	if err != nil {
		return "", err
	}
	v, err := r.expr(value)
	if err != nil {
		return "", err
	}

	switch class {
	case keyEnum:
		return "{ [key in " + k + "]?: " + v + " }", nil
	case keyBigInt:
		// bigint cannot index a Record; JSON object keys arrive as strings.
		k = "string"
	}
	return "Record<" + k + ", " + v + ">", nil
}

type keyClass int

const (
	keyScalar keyClass = iota
	keyEnum
	keyBigInt
)

func (r *tsRenderer) keyClass(key schema.TypeRef) (keyClass, error) {
	bad := func(why string) (keyClass, error) {
		return 0, unsupported(r.node.Name, "map key %s cannot index a TypeScript object: %s", key, why)
	}

	ref := key
	for depth := 0; depth <= r.snap.Len(); depth++ {
		if ref.Nullable {
			return bad("nullable key")
		}
		switch ref.Kind {
		case schema.RefPrimitive:
			if schema.IsWideInteger(ref.Name) && r.ts.integers == IntegerBigInt {
				return keyBigInt, nil
			}
			if ref.Name == schema.PrimString || ref.Name == schema.PrimChar || schema.IsInteger(ref.Name) {
				return keyScalar, nil
			}
			return bad("primitive " + ref.Name)
		case schema.RefParam:
			return bad("generic parameter")
		case schema.RefNamed:
			node, ok := r.snap.Node(ref.Name)
			if !ok {
				return bad("unknown type")
			}
			switch node.Kind {
			case schema.KindAlias, schema.KindWrapper:
				ref = *node.Target
				continue
			case schema.KindUnion:
				for _, v := range node.Variants {
					if !v.IsUnit() {
						return bad("union with payload variants")
					}
				}
				if node.Tagging != schema.TaggingExternal {
					return bad("union is not externally tagged")
				}
				return keyEnum, nil
			}
			return bad("struct")
		default:
			return bad(string(ref.Kind))
		}
	}
	return bad("alias chain too deep")
}

func (t *TypeScript) primitive(name string) string {
	switch name {
	case schema.PrimBool:
		return "boolean"
	case schema.PrimString, schema.PrimChar:
		return "string"
	case schema.PrimBytes:
		return "Array<number>"
	case schema.PrimJSON:
		return "unknown"
	}
	if schema.IsWideInteger(name) {
		switch t.integers {
		case IntegerBigInt:
			return "bigint"
		case IntegerString:
			return "string"
		}
	}
	return "number"
}

// propertyKey quotes keys that are not valid identifiers.
func propertyKey(name string) string {
	if isIdentifier(name) {
		return name
	}
	return strconv.Quote(name)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '$':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func writeDoc(b *strings.Builder, doc, indent string) {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return
	}
	lines := strings.Split(doc, "\n")
	if len(lines) == 1 {
		b.WriteString(indent + "/** " + escapeDoc(lines[0]) + " */\n")
		return
	}
	b.WriteString(indent + "/**\n")
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			b.WriteString(indent + " *\n")
			continue
		}
		b.WriteString(indent + " * " + escapeDoc(l) + "\n")
	}
	b.WriteString(indent + " */\n")
}

func escapeDoc(s string) string {
	return strings.ReplaceAll(s, "*/", "*\\/")
}
