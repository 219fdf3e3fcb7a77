// Package registry holds the canonical type definitions for one schema
// version. Types are registered into a mutable Registry, which is then sealed
// into an immutable Snapshot that exporters and checkers read without locks.
package registry

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/artpar/schemagate/core/schema"
)

// Registry collects type definitions until it is sealed.
type Registry struct {
	mu sync.RWMutex

	// nodes in declaration order
	nodes []schema.TypeNode

	// index maps names to positions in nodes
	index map[string]int

	sealed bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// FromNodes registers nodes in order and returns the first failure.
func FromNodes(nodes []schema.TypeNode) (*Registry, error) {
	r := New()
	for _, n := range nodes {
		if err := r.Register(n); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a node. The node is normalized and validated first.
// Returns *DuplicateNameError if the name is taken and ErrSealed after Seal.
func (r *Registry) Register(node schema.TypeNode) error {
	node = node.Normalize()
	if err := schema.Validate(node); err != nil {
		return fmt.Errorf("register %q: %w", node.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrSealed
	}

	if _, exists := r.index[node.Name]; exists {
		return &DuplicateNameError{Name: node.Name}
	}

	r.index[node.Name] = len(r.nodes)
	r.nodes = append(r.nodes, node)

	return nil
}

// Resolve returns the node a named reference points at.
func (r *Registry) Resolve(ref schema.TypeRef) (schema.TypeNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return resolve(r.nodes, r.index, ref)
}

// Get returns a registered node by name.
func (r *Registry) Get(name string) (schema.TypeNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[name]
	if !ok {
		return schema.TypeNode{}, false
	}
	return r.nodes[i], true
}

// AllNodes returns every node in declaration order.
func (r *Registry) AllNodes() []schema.TypeNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schema.TypeNode, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Sealed reports whether Seal has succeeded.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Seal validates cross-node integrity and freezes the registry into a
// Snapshot. Every violation is reported at once as an *IntegrityError; on
// failure the registry stays open.
func (r *Registry) Seal() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil, ErrSealed
	}

	if merr := checkIntegrity(r.nodes, r.index); merr != nil {
		return nil, &IntegrityError{Errs: merr.Errors}
	}

	snap, err := newSnapshot(r.nodes)
	if err != nil {
		return nil, err
	}

	r.sealed = true
	return snap, nil
}

func resolve(nodes []schema.TypeNode, index map[string]int, ref schema.TypeRef) (schema.TypeNode, error) {
	if ref.Kind != schema.RefNamed {
		return schema.TypeNode{}, fmt.Errorf("resolve %s: not a named reference", ref)
	}
	i, ok := index[ref.Name]
	if !ok {
		return schema.TypeNode{}, &UnresolvedReferenceError{Name: ref.Name}
	}
	return nodes[i], nil
}

// checkIntegrity walks every reference of every node.
func checkIntegrity(nodes []schema.TypeNode, index map[string]int) *multierror.Error {
	var result *multierror.Error

	for _, node := range nodes {
		reported := make(map[string]bool)
		for _, ref := range node.Refs() {
			ref.Walk(func(r schema.TypeRef) {
				if r.Kind != schema.RefNamed {
					return
				}

				i, ok := index[r.Name]
				if !ok {
					if !reported["unresolved:"+r.Name] {
						reported["unresolved:"+r.Name] = true
						result = multierror.Append(result, &UnresolvedReferenceError{From: node.Name, Name: r.Name})
					}
					return
				}

				target := nodes[i]
				if len(r.Args) != len(target.Generics) {
					key := fmt.Sprintf("arity:%s:%d", r.Name, len(r.Args))
					if !reported[key] {
						reported[key] = true
						result = multierror.Append(result, &ArityError{
							From: node.Name,
							Name: r.Name,
							Want: len(target.Generics),
							Got:  len(r.Args),
						})
					}
				}

				if target.Retired && !node.Retired && !reported["retired:"+r.Name] {
					reported["retired:"+r.Name] = true
					result = multierror.Append(result, &RetiredReferenceError{From: node.Name, Name: r.Name})
				}
			})
		}
	}

	if result.ErrorOrNil() == nil {
		return nil
	}
	return result
}
