package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is one schema file.
type Document struct {
	// Namespace is informational; type names are global to a registry.
	Namespace string `yaml:"namespace,omitempty"`

	// Types in declaration order.
	Types []TypeNode `yaml:"types"`
}

// ParseFile parses a schema document from a YAML file.
func ParseFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read file %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse parses a schema document from YAML bytes. Unknown keys are
// rejected so that typos do not silently drop fields.
func Parse(data []byte) (Document, error) {
	var doc Document

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("parse yaml: %w", err)
	}

	var errs []string
	for i, node := range doc.Types {
		node = node.Normalize()
		doc.Types[i] = node

		if err := Validate(node); err != nil {
			errs = append(errs, fmt.Sprintf("type %q: %v", node.Name, err))
		}
	}

	if len(errs) > 0 {
		return Document{}, fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return doc, nil
}

// ParseDir parses all schema documents in a directory, including
// subdirectories, and returns their types concatenated. Files are visited in
// lexical order so that declaration order is reproducible.
func ParseDir(dir string) ([]TypeNode, error) {
	var nodes []TypeNode

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			sub, err := ParseDir(path)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, sub...)
			continue
		}

		if !IsSchemaFile(entry.Name()) {
			continue
		}

		doc, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, doc.Types...)
	}

	return nodes, nil
}

// IsSchemaFile reports whether a file name looks like a schema document.
func IsSchemaFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// Validate checks a single normalized node. References to other nodes are
// not resolved here.
func Validate(node TypeNode) error {
	var errs []string

	if node.Name == "" {
		errs = append(errs, "type name is required")
	} else if !isValidIdentifier(node.Name) {
		errs = append(errs, fmt.Sprintf("type name %q is not a valid identifier", node.Name))
	} else if isBuiltinName(node.Name) {
		errs = append(errs, fmt.Sprintf("type name %q is reserved", node.Name))
	}

	seenParams := make(map[string]bool)
	for _, g := range node.Generics {
		switch {
		case !isValidIdentifier(g):
			errs = append(errs, fmt.Sprintf("generic parameter %q is not a valid identifier", g))
		case isBuiltinName(g):
			errs = append(errs, fmt.Sprintf("generic parameter %q is reserved", g))
		case seenParams[g]:
			errs = append(errs, fmt.Sprintf("generic parameter %q declared twice", g))
		}
		seenParams[g] = true
	}

	switch node.Kind {
	case KindStruct:
		if len(node.Variants) > 0 {
			errs = append(errs, "struct cannot declare variants")
		}
		if node.Target != nil {
			errs = append(errs, "struct cannot declare a type target")
		}
		errs = append(errs, validateFields(node.Fields, "")...)

	case KindUnion:
		errs = append(errs, validateUnion(node)...)

	case KindAlias, KindWrapper:
		if len(node.Fields) > 0 || len(node.Variants) > 0 {
			errs = append(errs, fmt.Sprintf("%s cannot declare fields or variants", node.Kind))
		}
		if node.Target == nil {
			errs = append(errs, fmt.Sprintf("%s requires a type target", node.Kind))
		} else {
			if err := validateRef(*node.Target); err != nil {
				errs = append(errs, err.Error())
			}
			if node.Kind == KindWrapper && node.Target.Kind != RefPrimitive {
				errs = append(errs, fmt.Sprintf("primitive-wrapper target %s is not a primitive", node.Target))
			}
		}

	case "":
		errs = append(errs, "kind is required")

	default:
		errs = append(errs, fmt.Sprintf("unknown kind %q", node.Kind))
	}

	if node.Kind != KindUnion && (node.Tagging != "" || node.TagKey != "" || node.ContentKey != "") {
		errs = append(errs, "tagging applies to tagged unions only")
	}

	if node.ExportTo != "" {
		clean := filepath.ToSlash(filepath.Clean(node.ExportTo))
		if filepath.IsAbs(node.ExportTo) || clean == ".." || strings.HasPrefix(clean, "../") {
			errs = append(errs, fmt.Sprintf("export_to %q must stay inside the output directory", node.ExportTo))
		}
	}

	if node.RenamedFrom != "" && node.RenamedFrom == node.Name {
		errs = append(errs, "renamed_from equals the type name")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

func validateUnion(node TypeNode) []string {
	var errs []string

	if len(node.Fields) > 0 {
		errs = append(errs, "tagged-union cannot declare fields; use variants")
	}
	if node.Target != nil {
		errs = append(errs, "tagged-union cannot declare a type target")
	}
	if len(node.Variants) == 0 {
		errs = append(errs, "tagged-union must have at least one variant")
	}

	switch node.Tagging {
	case TaggingExternal:
	case TaggingInternal, TaggingAdjacent:
		if !isValidIdentifier(node.TagKey) {
			errs = append(errs, fmt.Sprintf("tag_key %q is not a valid identifier", node.TagKey))
		}
		if node.Tagging == TaggingAdjacent {
			if !isValidIdentifier(node.ContentKey) {
				errs = append(errs, fmt.Sprintf("content_key %q is not a valid identifier", node.ContentKey))
			}
			if node.ContentKey == node.TagKey {
				errs = append(errs, "tag_key and content_key must differ")
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown tagging %q", node.Tagging))
	}

	seen := make(map[string]bool)
	for _, v := range node.Variants {
		if v.Tag == "" {
			errs = append(errs, "variant tag is required")
			continue
		}
		if seen[v.Tag] {
			errs = append(errs, fmt.Sprintf("variant %q declared twice", v.Tag))
		}
		seen[v.Tag] = true

		if v.Payload != nil && len(v.Fields) > 0 {
			errs = append(errs, fmt.Sprintf("variant %q: payload and fields are mutually exclusive", v.Tag))
		}
		if v.Payload != nil {
			if err := validateRef(*v.Payload); err != nil {
				errs = append(errs, fmt.Sprintf("variant %q: %v", v.Tag, err))
			}
		}
		errs = append(errs, validateFields(v.Fields, fmt.Sprintf("variant %q: ", v.Tag))...)

		if node.Tagging == TaggingInternal {
			for _, f := range v.Fields {
				if f.Name == node.TagKey {
					errs = append(errs, fmt.Sprintf("variant %q: field %q collides with tag_key", v.Tag, f.Name))
				}
			}
		}
	}

	return errs
}

func validateFields(fields []FieldSpec, prefix string) []string {
	var errs []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if !isValidIdentifier(f.Name) {
			errs = append(errs, fmt.Sprintf("%sfield name %q is not a valid identifier", prefix, f.Name))
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Sprintf("%sfield %q declared twice", prefix, f.Name))
		}
		seen[f.Name] = true

		if err := validateRef(f.Type); err != nil {
			errs = append(errs, fmt.Sprintf("%sfield %q: %v", prefix, f.Name, err))
		}
		if f.RenamedFrom != "" && f.RenamedFrom == f.Name {
			errs = append(errs, fmt.Sprintf("%sfield %q: renamed_from equals the field name", prefix, f.Name))
		}
	}
	return errs
}

// validateRef checks shape rules that the parser guarantees but
// programmatically built references may violate.
func validateRef(ref TypeRef) error {
	var err error
	ref.Walk(func(r TypeRef) {
		if err != nil {
			return
		}
		switch r.Kind {
		case RefList:
			if len(r.Args) != 1 {
				err = fmt.Errorf("list takes 1 type argument, got %d", len(r.Args))
			}
		case RefMap:
			if len(r.Args) != 2 {
				err = fmt.Errorf("map takes 2 type arguments, got %d", len(r.Args))
			}
		case RefTuple:
			if len(r.Args) < 2 {
				err = fmt.Errorf("tuple needs at least 2 items, got %d", len(r.Args))
			}
		case RefPrimitive:
			if !IsPrimitive(r.Name) {
				err = fmt.Errorf("unknown primitive %q", r.Name)
			}
		case RefParam:
			if len(r.Args) > 0 {
				err = fmt.Errorf("generic parameter %s takes no type arguments", r.Name)
			}
		case RefNamed:
			if !isValidIdentifier(r.Name) {
				err = fmt.Errorf("invalid type name %q", r.Name)
			}
		case RefUnit:
		default:
			err = fmt.Errorf("unknown reference kind %q", r.Kind)
		}
	})
	return err
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
