package checker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// UnionPolicy records whether consumers tolerate unknown variants.
type UnionPolicy string

const (
	// UnionOpen unions may gain variants without breaking consumers.
	UnionOpen UnionPolicy = "open"
	// UnionExhaustive unions are matched exhaustively by consumers.
	UnionExhaustive UnionPolicy = "exhaustive"
)

// Policy is the externally supplied compatibility policy.
//
//	unions:
//	  Command: exhaustive
//	  WalletEvent: open
//	fail_when: breaking > 0 && any(changes, .type != "Internal")
type Policy struct {
	Unions map[string]UnionPolicy `yaml:"unions"`

	// FailWhen is an expr-lang expression over GateEnv. A check fails
	// when it evaluates to true.
	FailWhen string `yaml:"fail_when,omitempty"`

	gate *vm.Program
}

// GateEnv is the environment a FailWhen expression is evaluated in.
type GateEnv struct {
	Changes  []GateChange `expr:"changes"`
	Total    int          `expr:"total"`
	Breaking int          `expr:"breaking"`
}

// GateChange is one change as seen by a FailWhen expression.
type GateChange struct {
	Kind           string `expr:"kind"`
	Classification string `expr:"classification"`
	Type           string `expr:"type"`
	Member         string `expr:"member"`
	Breaking       bool   `expr:"breaking"`
}

// NewGateEnv builds the gate environment for changes.
func NewGateEnv(changes []SchemaChange) GateEnv {
	env := GateEnv{Changes: make([]GateChange, len(changes)), Total: len(changes)}
	for i, c := range changes {
		env.Changes[i] = GateChange{
			Kind:           string(c.Kind),
			Classification: c.Classification(),
			Type:           c.Type,
			Member:         c.Member,
			Breaking:       c.Breaking,
		}
		if c.Breaking {
			env.Breaking++
		}
	}
	return env
}

// Gate evaluates FailWhen against changes. A policy without FailWhen never
// fails the gate.
func (p *Policy) Gate(changes []SchemaChange) (bool, error) {
	if p == nil || p.gate == nil {
		return false, nil
	}
	out, err := expr.Run(p.gate, NewGateEnv(changes))
	if err != nil {
		return false, fmt.Errorf("run fail_when: %w", err)
	}
	failed, _ := out.(bool)
	return failed, nil
}

// Union returns the recorded policy for a union and whether one exists.
// Unrecorded unions are exhaustive.
func (p *Policy) Union(name string) (UnionPolicy, bool) {
	if p == nil || p.Unions == nil {
		return UnionExhaustive, false
	}
	up, ok := p.Unions[name]
	if !ok {
		return UnionExhaustive, false
	}
	return up, true
}

// ParsePolicy parses a policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	names := make([]string, 0, len(p.Unions))
	for name := range p.Unions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if up := p.Unions[name]; up != UnionOpen && up != UnionExhaustive {
			return nil, fmt.Errorf("policy for union %q: unknown value %q (want open or exhaustive)", name, up)
		}
	}

	if p.FailWhen != "" {
		program, err := expr.Compile(p.FailWhen, expr.Env(GateEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile fail_when: %w", err)
		}
		p.gate = program
	}
	return &p, nil
}

// LoadPolicy reads a policy file. An empty path yields an empty policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return &Policy{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}
