package registry

import (
	"sort"

	"github.com/artpar/schemagate/core/schema"
)

// Snapshot is a sealed, immutable registry. It is safe for concurrent use
// because nothing mutates it after construction. Callers must treat returned
// nodes as read-only.
type Snapshot struct {
	version string
	nodes   []schema.TypeNode
	index   map[string]int

	// per node, parallel to nodes
	refs      [][]string
	deps      [][]string
	component []int
	recursive []bool

	// members of each strongly connected component, declaration order
	components [][]int
}

func newSnapshot(nodes []schema.TypeNode) (*Snapshot, error) {
	s := &Snapshot{
		nodes: make([]schema.TypeNode, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}
	copy(s.nodes, nodes)

	for i, n := range s.nodes {
		s.index[n.Name] = i
	}

	s.refs = make([][]string, len(s.nodes))
	for i, n := range s.nodes {
		s.refs[i] = n.NamedRefs()
	}

	s.computeComponents()
	s.computeDependencies()

	data, err := encodeNodes(s.nodes)
	if err != nil {
		return nil, err
	}
	s.version = digest(data)

	return s, nil
}

// Version is the content hash identifying this schema version.
func (s *Snapshot) Version() string {
	return s.version
}

// ShortVersion is a 12 character prefix of Version for display.
func (s *Snapshot) ShortVersion() string {
	if len(s.version) < 12 {
		return s.version
	}
	return s.version[:12]
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int {
	return len(s.nodes)
}

// AllNodes returns every node in declaration order.
func (s *Snapshot) AllNodes() []schema.TypeNode {
	out := make([]schema.TypeNode, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Node returns a node by name.
func (s *Snapshot) Node(name string) (schema.TypeNode, bool) {
	i, ok := s.index[name]
	if !ok {
		return schema.TypeNode{}, false
	}
	return s.nodes[i], true
}

// Position returns the declaration index of a node, or -1.
func (s *Snapshot) Position(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Resolve returns the node a named reference points at.
func (s *Snapshot) Resolve(ref schema.TypeRef) (schema.TypeNode, error) {
	return resolve(s.nodes, s.index, ref)
}

// References returns the names directly referenced by a node, in
// first-occurrence order.
func (s *Snapshot) References(name string) []string {
	i, ok := s.index[name]
	if !ok {
		return nil
	}
	return append([]string(nil), s.refs[i]...)
}

// Dependencies returns every node transitively reachable from name,
// excluding name itself, sorted by name.
func (s *Snapshot) Dependencies(name string) []string {
	i, ok := s.index[name]
	if !ok {
		return nil
	}
	return append([]string(nil), s.deps[i]...)
}

// IsRecursive reports whether a node can reach itself.
func (s *Snapshot) IsRecursive(name string) bool {
	i, ok := s.index[name]
	return ok && s.recursive[i]
}

// Cycle returns the members of the recursive group containing name, in
// declaration order, or nil if the node is not recursive.
func (s *Snapshot) Cycle(name string) []string {
	i, ok := s.index[name]
	if !ok || !s.recursive[i] {
		return nil
	}
	members := s.components[s.component[i]]
	out := make([]string, len(members))
	for j, m := range members {
		out[j] = s.nodes[m].Name
	}
	return out
}

// computeComponents runs Tarjan's algorithm over the reference graph.
// Traversal follows declaration and reference order, so component numbering
// is deterministic.
func (s *Snapshot) computeComponents() {
	n := len(s.nodes)
	s.component = make([]int, n)
	s.recursive = make([]bool, n)

	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var stack []int
	counter := 0

	var visit func(v int)
	visit = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, name := range s.refs[v] {
			w := s.index[name]
			if index[w] == -1 {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var members []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				members = append(members, w)
				if w == v {
					break
				}
			}
			sort.Ints(members)

			id := len(s.components)
			s.components = append(s.components, members)
			for _, m := range members {
				s.component[m] = id
			}

			if len(members) > 1 {
				for _, m := range members {
					s.recursive[m] = true
				}
			} else if s.refersTo(v, v) {
				s.recursive[v] = true
			}
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == -1 {
			visit(v)
		}
	}
}

func (s *Snapshot) refersTo(from, to int) bool {
	name := s.nodes[to].Name
	for _, r := range s.refs[from] {
		if r == name {
			return true
		}
	}
	return false
}

func (s *Snapshot) computeDependencies() {
	s.deps = make([][]string, len(s.nodes))
	for i := range s.nodes {
		seen := make(map[int]bool)
		var walk func(v int)
		walk = func(v int) {
			for _, name := range s.refs[v] {
				w := s.index[name]
				if seen[w] {
					continue
				}
				seen[w] = true
				walk(w)
			}
		}
		walk(i)
		delete(seen, i)

		names := make([]string, 0, len(seen))
		for w := range seen {
			names = append(names, s.nodes[w].Name)
		}
		sort.Strings(names)
		s.deps[i] = names
	}
}
