package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RefKind classifies a TypeRef.
type RefKind string

const (
	RefNamed     RefKind = "named"     // another TypeNode
	RefParam     RefKind = "param"     // a generic parameter of the enclosing node
	RefPrimitive RefKind = "primitive" // a built-in primitive
	RefList      RefKind = "list"      // ordered sequence of Args[0]
	RefMap       RefKind = "map"       // Args[0] -> Args[1]
	RefTuple     RefKind = "tuple"     // positional Args
	RefUnit      RefKind = "unit"      // ()
)

// TypeRef is a reference to a type, possibly parameterized and wrapped in
// modifiers.
type TypeRef struct {
	Kind RefKind

	// Name is the node, primitive or parameter name.
	Name string

	// Args holds generic arguments for named refs and element types for
	// containers.
	Args []TypeRef

	// Nullable is the Option<...> modifier.
	Nullable bool

	// Boxed is the Box<...> modifier, an explicit indirection point.
	Boxed bool
}

// Named returns a reference to the node called name.
func Named(name string, args ...TypeRef) TypeRef {
	return TypeRef{Kind: RefNamed, Name: name, Args: args}
}

// Prim returns a reference to a primitive.
func Prim(name string) TypeRef {
	return TypeRef{Kind: RefPrimitive, Name: name}
}

// ListOf returns a sequence of elem.
func ListOf(elem TypeRef) TypeRef {
	return TypeRef{Kind: RefList, Args: []TypeRef{elem}}
}

// MapOf returns a map from key to value.
func MapOf(key, value TypeRef) TypeRef {
	return TypeRef{Kind: RefMap, Args: []TypeRef{key, value}}
}

// OptionOf returns ref marked nullable.
func OptionOf(ref TypeRef) TypeRef {
	ref.Nullable = true
	return ref
}

// IsIndirect reports whether a value of this type does not embed the
// referenced type inline, which bounds recursive definitions.
func (r TypeRef) IsIndirect() bool {
	return r.Nullable || r.Boxed || r.Kind == RefList || r.Kind == RefMap
}

// Walk calls fn for r and every nested argument, depth first.
func (r TypeRef) Walk(fn func(TypeRef)) {
	fn(r)
	for _, a := range r.Args {
		a.Walk(fn)
	}
}

// Equal reports structural equality.
func (r TypeRef) Equal(o TypeRef) bool {
	if r.Kind != o.Kind || r.Name != o.Name || r.Nullable != o.Nullable ||
		r.Boxed != o.Boxed || len(r.Args) != len(o.Args) {
		return false
	}
	for i := range r.Args {
		if !r.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return true
}

// String renders the canonical type expression. ParseTypeExpr(r.String())
// yields a reference equal to r.
func (r TypeRef) String() string {
	s := r.base()
	if r.Boxed {
		s = "Box<" + s + ">"
	}
	if r.Nullable {
		s = "Option<" + s + ">"
	}
	return s
}

func (r TypeRef) base() string {
	switch r.Kind {
	case RefList:
		return "Vec<" + joinRefs(r.Args) + ">"
	case RefMap:
		return "Map<" + joinRefs(r.Args) + ">"
	case RefTuple:
		return "(" + joinRefs(r.Args) + ")"
	case RefUnit:
		return "()"
	}
	if len(r.Args) > 0 {
		return r.Name + "<" + joinRefs(r.Args) + ">"
	}
	return r.Name
}

func joinRefs(refs []TypeRef) string {
	parts := make([]string, len(refs))
	for i, a := range refs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// UnmarshalYAML decodes a type expression string.
func (r *TypeRef) UnmarshalYAML(value *yaml.Node) error {
	var expr string
	if err := value.Decode(&expr); err != nil {
		return fmt.Errorf("line %d: type must be a string expression", value.Line)
	}
	ref, err := ParseTypeExpr(expr)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*r = ref
	return nil
}

// MarshalYAML encodes the canonical type expression.
func (r TypeRef) MarshalYAML() (any, error) {
	return r.String(), nil
}

// ParseTypeExpr parses a type expression such as "Option<Vec<Foo<u64>>>".
// Identifiers that are neither built-ins nor primitives become named
// references; TypeNode.Normalize rebinds generic parameters.
func ParseTypeExpr(expr string) (TypeRef, error) {
	p := &exprParser{input: expr, toks: tokenize(expr)}
	ref, err := p.parse()
	if err != nil {
		return TypeRef{}, fmt.Errorf("type %q: %w", expr, err)
	}
	if p.pos < len(p.toks) {
		return TypeRef{}, fmt.Errorf("type %q: unexpected %q", expr, p.toks[p.pos])
	}
	return ref, nil
}

// MustParseTypeExpr is ParseTypeExpr for literals known to be valid.
func MustParseTypeExpr(expr string) TypeRef {
	ref, err := ParseTypeExpr(expr)
	if err != nil {
		panic(err)
	}
	return ref
}

type exprParser struct {
	input string
	toks  []string
	pos   int
}

func tokenize(s string) []string {
	var toks []string
	i := 0
	for i < len(s) {
		c := rune(s[i])
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case strings.ContainsRune("<>,()", c):
			toks = append(toks, string(c))
			i++
		default:
			j := i
			for j < len(s) && !strings.ContainsRune("<>,() \t\n", rune(s[j])) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

func (p *exprParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *exprParser) next() string {
	t := p.peek()
	if t != "" {
		p.pos++
	}
	return t
}

func (p *exprParser) expect(tok string) error {
	if got := p.next(); got != tok {
		if got == "" {
			return fmt.Errorf("expected %q, got end of input", tok)
		}
		return fmt.Errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *exprParser) parse() (TypeRef, error) {
	tok := p.next()
	switch tok {
	case "":
		return TypeRef{}, fmt.Errorf("empty type")
	case "(":
		return p.parseTuple()
	case "<", ">", ",", ")":
		return TypeRef{}, fmt.Errorf("unexpected %q", tok)
	}

	if !isValidIdentifier(tok) {
		return TypeRef{}, fmt.Errorf("invalid identifier %q", tok)
	}

	var args []TypeRef
	if p.peek() == "<" {
		p.next()
		for {
			arg, err := p.parse()
			if err != nil {
				return TypeRef{}, err
			}
			args = append(args, arg)
			if p.peek() == "," {
				p.next()
				continue
			}
			if err := p.expect(">"); err != nil {
				return TypeRef{}, err
			}
			break
		}
	}

	return builtin(tok, args)
}

func (p *exprParser) parseTuple() (TypeRef, error) {
	if p.peek() == ")" {
		p.next()
		return TypeRef{Kind: RefUnit}, nil
	}
	var items []TypeRef
	for {
		item, err := p.parse()
		if err != nil {
			return TypeRef{}, err
		}
		items = append(items, item)
		if p.peek() == "," {
			p.next()
			if p.peek() == ")" {
				break
			}
			continue
		}
		break
	}
	if err := p.expect(")"); err != nil {
		return TypeRef{}, err
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return TypeRef{Kind: RefTuple, Args: items}, nil
}

func builtin(name string, args []TypeRef) (TypeRef, error) {
	arity := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d type argument(s), got %d", name, n, len(args))
		}
		return nil
	}

	switch name {
	case "Vec", "List":
		if err := arity(1); err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: RefList, Args: args}, nil
	case "Map", "HashMap", "BTreeMap":
		if err := arity(2); err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: RefMap, Args: args}, nil
	case "Option":
		if err := arity(1); err != nil {
			return TypeRef{}, err
		}
		inner := args[0]
		inner.Nullable = true
		return inner, nil
	case "Box":
		if err := arity(1); err != nil {
			return TypeRef{}, err
		}
		inner := args[0]
		inner.Boxed = true
		return inner, nil
	}

	if IsPrimitive(name) {
		if len(args) > 0 {
			return TypeRef{}, fmt.Errorf("primitive %s takes no type arguments", name)
		}
		return Prim(name), nil
	}

	return Named(name, args...), nil
}

// isBuiltinName reports whether name is reserved by the expression syntax.
func isBuiltinName(name string) bool {
	switch name {
	case "Vec", "List", "Map", "HashMap", "BTreeMap", "Option", "Box":
		return true
	}
	return IsPrimitive(name)
}
