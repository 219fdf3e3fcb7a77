package checker

import (
	"strings"

	"github.com/artpar/schemagate/core/registry"
	"github.com/artpar/schemagate/core/schema"
)

// Diff classifies every difference between base and head. Changes are
// ordered by the declaration order of head, followed by removals in the
// declaration order of base. A nil base reports every type as added.
func Diff(base, head *registry.Snapshot, policy *Policy) []SchemaChange {
	d := &differ{policy: policy}

	matched := make(map[string]bool)
	for _, n := range head.AllNodes() {
		o, ok := lookup(base, n.Name)
		if !ok && n.RenamedFrom != "" {
			if prev, found := lookup(base, n.RenamedFrom); found {
				if _, stillThere := head.Node(n.RenamedFrom); !stillThere {
					d.add(SchemaChange{
						Kind: Renamed, Type: n.Name,
						Old: n.RenamedFrom, New: n.Name,
						Breaking: true,
						Detail:   "consumers refer to the type by its old name",
					})
					o, ok = prev, true
				}
			}
		}

		if !ok {
			d.add(SchemaChange{Kind: Added, Type: n.Name, New: string(n.Kind)})
			continue
		}

		matched[o.Name] = true
		d.compareNodes(o, n)
	}

	if base != nil {
		for _, o := range base.AllNodes() {
			if !matched[o.Name] {
				d.add(SchemaChange{
					Kind: Removed, Type: o.Name, Old: string(o.Kind),
					Breaking: true,
				})
			}
		}
	}

	return d.changes
}

func lookup(snap *registry.Snapshot, name string) (schema.TypeNode, bool) {
	if snap == nil {
		return schema.TypeNode{}, false
	}
	return snap.Node(name)
}

type differ struct {
	policy  *Policy
	changes []SchemaChange
}

func (d *differ) add(c SchemaChange) {
	d.changes = append(d.changes, c)
}

func (d *differ) compareNodes(o, n schema.TypeNode) {
	if !o.Retired && n.Retired {
		d.add(SchemaChange{
			Kind: Retired, Type: n.Name,
			Detail: "type is still exported but must no longer be referenced",
		})
	}

	if o.Kind != n.Kind {
		d.add(SchemaChange{
			Kind: KindChanged, Type: n.Name,
			Old: string(o.Kind), New: string(n.Kind),
			Breaking: true,
		})
		return
	}

	if strings.Join(o.Generics, ",") != strings.Join(n.Generics, ",") {
		d.add(SchemaChange{
			Kind: GenericsChanged, Type: n.Name,
			Old: "<" + strings.Join(o.Generics, ", ") + ">",
			New: "<" + strings.Join(n.Generics, ", ") + ">",
			Breaking: true,
		})
	}

	switch n.Kind {
	case schema.KindStruct:
		d.compareFields(n.Name, "", o.Fields, n.Fields)

	case schema.KindUnion:
		d.compareUnion(o, n)

	case schema.KindAlias, schema.KindWrapper:
		if !refEqual(o.Target, n.Target) {
			d.add(SchemaChange{
				Kind: TargetChanged, Type: n.Name,
				Old: refString(o.Target), New: refString(n.Target),
				Breaking: true,
			})
		}
	}
}

// compareFields diffs two ordered field lists. prefix qualifies members of
// struct variants ("Tag.").
func (d *differ) compareFields(typeName, prefix string, oldFields, newFields []schema.FieldSpec) {
	oldByName := make(map[string]schema.FieldSpec, len(oldFields))
	for _, f := range oldFields {
		oldByName[f.Name] = f
	}

	consumed := make(map[string]bool)
	var oldOrder, newOrder []string

	for _, f := range newFields {
		prev, ok := oldByName[f.Name]
		if !ok && f.RenamedFrom != "" {
			if p, found := oldByName[f.RenamedFrom]; found && !hasField(newFields, f.RenamedFrom) {
				d.add(SchemaChange{
					Kind: FieldRenamed, Type: typeName, Member: prefix + f.Name,
					Old: f.RenamedFrom, New: f.Name,
					Breaking: true,
					Detail:   "wire key changed",
				})
				prev, ok = p, true
			}
		}

		if !ok {
			c := SchemaChange{
				Kind: FieldAdded, Type: typeName, Member: prefix + f.Name,
				New: fieldString(f),
			}
			if f.IsRequired() {
				c.Breaking = true
				c.Detail = "required field added; existing producers do not send it"
			} else {
				c.Detail = "optional field added"
			}
			d.add(c)
			continue
		}

		consumed[prev.Name] = true
		oldOrder = append(oldOrder, prev.Name)
		newOrder = append(newOrder, prev.Name)

		if of, nf := fieldString(prev), fieldString(f); of != nf {
			d.add(SchemaChange{
				Kind: FieldTypeChanged, Type: typeName, Member: prefix + f.Name,
				Old: of, New: nf,
				Breaking: true,
				Detail:   fieldChangeDetail(prev, f),
			})
		}
	}

	for _, f := range oldFields {
		if !consumed[f.Name] {
			d.add(SchemaChange{
				Kind: FieldRemoved, Type: typeName, Member: prefix + f.Name,
				Old:      fieldString(f),
				Breaking: true,
			})
		}
	}

	// oldOrder was collected in new order; re-sort by old positions.
	oldOrder = orderBy(oldOrder, oldFields)
	if strings.Join(oldOrder, ",") != strings.Join(newOrder, ",") {
		d.add(SchemaChange{
			Kind: FieldReordered, Type: typeName, Member: strings.TrimSuffix(prefix, "."),
			Old: strings.Join(oldOrder, ", "), New: strings.Join(newOrder, ", "),
			Breaking: true,
			Detail:   "positional encodings depend on field order",
		})
	}
}

func (d *differ) compareUnion(o, n schema.TypeNode) {
	if o.Tagging != n.Tagging || o.TagKey != n.TagKey || o.ContentKey != n.ContentKey {
		d.add(SchemaChange{
			Kind: TaggingChanged, Type: n.Name,
			Old: taggingString(o), New: taggingString(n),
			Breaking: true,
		})
	}

	var oldOrder, newOrder []string

	for _, v := range n.Variants {
		prev, ok := o.Variant(v.Tag)
		if !ok {
			d.add(d.variantAdded(n.Name, v))
			continue
		}

		newOrder = append(newOrder, v.Tag)

		if len(prev.Fields) > 0 && len(v.Fields) > 0 {
			d.compareFields(n.Name, v.Tag+".", prev.Fields, v.Fields)
			continue
		}

		if ps, ns := payloadString(prev), payloadString(v); ps != ns {
			d.add(SchemaChange{
				Kind: VariantPayloadChanged, Type: n.Name, Member: v.Tag,
				Old: ps, New: ns,
				Breaking: true,
			})
		}
	}

	for _, v := range o.Variants {
		if _, ok := n.Variant(v.Tag); !ok {
			d.add(SchemaChange{
				Kind: VariantRemoved, Type: n.Name, Member: v.Tag,
				Old:      payloadString(v),
				Breaking: true,
			})
			continue
		}
		oldOrder = append(oldOrder, v.Tag)
	}

	if strings.Join(oldOrder, ",") != strings.Join(newOrder, ",") {
		d.add(SchemaChange{
			Kind: VariantReordered, Type: n.Name,
			Old: strings.Join(oldOrder, ", "), New: strings.Join(newOrder, ", "),
			Breaking: true,
			Detail:   "index-based encodings depend on variant order",
		})
	}
}

func (d *differ) variantAdded(typeName string, v schema.VariantSpec) SchemaChange {
	c := SchemaChange{
		Kind: VariantAdded, Type: typeName, Member: v.Tag,
		New: payloadString(v),
	}

	up, recorded := d.policy.Union(typeName)
	switch {
	case !recorded:
		c.Breaking = true
		c.Detail = "union has no recorded policy; treated as exhaustive"
	case up == UnionOpen:
		c.Detail = "union is open"
	default:
		c.Breaking = true
		c.Detail = "union is exhaustive"
	}
	return c
}

func hasField(fields []schema.FieldSpec, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func orderBy(names []string, fields []schema.FieldSpec) []string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]string, 0, len(names))
	for _, f := range fields {
		if want[f.Name] {
			out = append(out, f.Name)
		}
	}
	return out
}

// fieldString renders everything about a field that affects the wire.
func fieldString(f schema.FieldSpec) string {
	s := f.Type.String()
	if f.Override != "" {
		s += " as " + f.Override
	}
	if f.Optional {
		s += " (optional)"
	}
	return s
}

func fieldChangeDetail(o, n schema.FieldSpec) string {
	switch {
	case o.Optional && !n.Optional:
		return "field became required"
	case !o.Optional && n.Optional:
		return "field became optional; consumers may now see it absent"
	case o.Nullable && !n.Nullable:
		return "field is no longer nullable"
	case !o.Nullable && n.Nullable:
		return "field became nullable; consumers may now see null"
	}
	return "field type changed"
}

func payloadString(v schema.VariantSpec) string {
	switch {
	case v.Payload != nil:
		return v.Payload.String()
	case len(v.Fields) > 0:
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			parts[i] = f.Name + ": " + fieldString(f)
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	}
	return "unit"
}

func taggingString(n schema.TypeNode) string {
	switch n.Tagging {
	case schema.TaggingInternal:
		return "internal(" + n.TagKey + ")"
	case schema.TaggingAdjacent:
		return "adjacent(" + n.TagKey + ", " + n.ContentKey + ")"
	}
	return string(n.Tagging)
}

func refEqual(a, b *schema.TypeRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func refString(r *schema.TypeRef) string {
	if r == nil {
		return ""
	}
	return r.String()
}
