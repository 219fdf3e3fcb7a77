package exporter

import (
	"strings"

	"github.com/artpar/schemagate/core/registry"
	"github.com/artpar/schemagate/core/schema"
)

// checkShape rejects nodes that no target can represent.
func checkShape(node schema.TypeNode, snap *registry.Snapshot) error {
	if snap.IsRecursive(node.Name) {
		if cycle := byValueCycle(node.Name, snap); cycle != nil {
			return unsupported(node.Name, "unbounded by-value recursion %s; add an indirection (Box, Option, Vec or an optional field)",
				strings.Join(cycle, " -> "))
		}
	}

	if node.Kind == schema.KindUnion && node.Tagging == schema.TaggingInternal {
		for _, v := range node.Variants {
			if err := checkInternalVariant(node, v, snap); err != nil {
				return err
			}
		}
	}

	return nil
}

// byValueRefs returns the nodes embedded inline in a value of node. A
// generic argument is followed when the referenced node embeds the matching
// parameter by value.
func byValueRefs(node schema.TypeNode, snap *registry.Snapshot) []string {
	var names []string
	seen := make(map[string]bool)
	walkByValue(node, snap, make(map[string]bool), func(ref schema.TypeRef) {
		if ref.Kind == schema.RefNamed && !seen[ref.Name] {
			seen[ref.Name] = true
			names = append(names, ref.Name)
		}
	})
	return names
}

// byValueParams returns the generic parameters node embeds by value.
func byValueParams(node schema.TypeNode, snap *registry.Snapshot, active map[string]bool) map[string]bool {
	if active[node.Name] {
		return nil
	}
	active[node.Name] = true
	defer delete(active, node.Name)

	params := make(map[string]bool)
	walkByValue(node, snap, active, func(ref schema.TypeRef) {
		if ref.Kind == schema.RefParam {
			params[ref.Name] = true
		}
	})
	return params
}

// walkByValue calls fn for every named or parameter reference stored inline
// in a value of node.
func walkByValue(node schema.TypeNode, snap *registry.Snapshot, active map[string]bool, fn func(schema.TypeRef)) {
	var visit func(ref schema.TypeRef)
	visit = func(ref schema.TypeRef) {
		if ref.IsIndirect() {
			return
		}
		switch ref.Kind {
		case schema.RefParam:
			fn(ref)
		case schema.RefNamed:
			fn(ref)
			if len(ref.Args) == 0 {
				return
			}
			target, ok := snap.Node(ref.Name)
			if !ok {
				return
			}
			inline := byValueParams(target, snap, active)
			for i, a := range ref.Args {
				if i < len(target.Generics) && inline[target.Generics[i]] {
					visit(a)
				}
			}
		case schema.RefTuple:
			for _, a := range ref.Args {
				visit(a)
			}
		}
	}

	fields := func(fs []schema.FieldSpec) {
		for _, f := range fs {
			if f.Optional || f.Override != "" {
				continue
			}
			visit(f.Type)
		}
	}

	fields(node.Fields)
	for _, v := range node.Variants {
		if v.Payload != nil {
			visit(*v.Payload)
		}
		fields(v.Fields)
	}
	if node.Target != nil {
		visit(*node.Target)
	}
}

// byValueCycle returns a path from name back to itself that never passes
// through an indirection point, or nil.
func byValueCycle(name string, snap *registry.Snapshot) []string {
	visited := make(map[string]bool)
	var path []string

	var dfs func(cur string) bool
	dfs = func(cur string) bool {
		node, ok := snap.Node(cur)
		if !ok {
			return false
		}
		path = append(path, cur)
		for _, next := range byValueRefs(node, snap) {
			if next == name {
				path = append(path, next)
				return true
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			if dfs(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if dfs(name) {
		return path
	}
	return nil
}

// checkInternalVariant requires an object payload for internally tagged
// variants, and no field named like the tag key.
func checkInternalVariant(node schema.TypeNode, v schema.VariantSpec, snap *registry.Snapshot) error {
	fields := v.Fields
	if v.Payload != nil {
		target, ok := structPayload(*v.Payload, snap)
		if !ok {
			return unsupported(node.Name, "internally tagged variant %q has non-object payload %s", v.Tag, v.Payload)
		}
		fields = target.Fields
	}

	for _, f := range fields {
		if f.Name == node.TagKey {
			return unsupported(node.Name, "variant %q field %q collides with tag key", v.Tag, f.Name)
		}
	}
	return nil
}

// structPayload follows aliases from ref to a struct node.
func structPayload(ref schema.TypeRef, snap *registry.Snapshot) (schema.TypeNode, bool) {
	for depth := 0; depth < snap.Len()+1; depth++ {
		if ref.Kind != schema.RefNamed || ref.Nullable {
			return schema.TypeNode{}, false
		}
		node, ok := snap.Node(ref.Name)
		if !ok {
			return schema.TypeNode{}, false
		}
		switch node.Kind {
		case schema.KindStruct:
			return node, true
		case schema.KindAlias:
			ref = *node.Target
		default:
			return schema.TypeNode{}, false
		}
	}
	return schema.TypeNode{}, false
}
