package exporter

import (
	"path"
	"strings"

	"github.com/artpar/schemagate/core/schema"
)

// unitPath returns the slash path of a node's file.
func unitPath(node schema.TypeNode, ext string) string {
	return path.Join(node.ExportTo, node.Name+ext)
}

// importPath returns the module specifier that imports the file at to from
// the file at from, without extension, always starting with "./" or "../".
func importPath(from, to, ext string) string {
	rel := relSlash(path.Dir(from), strings.TrimSuffix(to, ext))
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel
}

func relSlash(base, target string) string {
	split := func(p string) []string {
		p = path.Clean(p)
		if p == "." {
			return nil
		}
		return strings.Split(p, "/")
	}

	b, t := split(base), split(target)
	common := 0
	for common < len(b) && common < len(t)-1 && b[common] == t[common] {
		common++
	}

	var parts []string
	for range b[common:] {
		parts = append(parts, "..")
	}
	parts = append(parts, t[common:]...)
	return strings.Join(parts, "/")
}
