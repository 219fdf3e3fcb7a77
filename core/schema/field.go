package schema

// FieldSpec defines one field of a struct or struct-style variant.
type FieldSpec struct {
	// Name is the wire key. It is emitted verbatim.
	Name string `yaml:"name"`

	// Type is the field's type expression.
	Type TypeRef `yaml:"type"`

	// Optional fields may be absent from the payload.
	Optional bool `yaml:"optional,omitempty"`

	// Nullable fields may be present with a null value. Equivalent to
	// wrapping Type in Option<...>.
	Nullable bool `yaml:"nullable,omitempty"`

	Doc string `yaml:"doc,omitempty"`

	// Override replaces the generated target type with raw target text,
	// for wire encodings the type model cannot describe (e.g. byte arrays
	// serialized as number arrays).
	Override string `yaml:"override,omitempty"`

	// RenamedFrom records an explicit rename migration of the wire key.
	RenamedFrom string `yaml:"renamed_from,omitempty"`
}

// IsRequired reports whether the field must be present and non-null.
func (f FieldSpec) IsRequired() bool {
	return !f.Optional && !f.Nullable
}

// Primitive type names understood by type expressions.
const (
	PrimBool   = "bool"
	PrimString = "string"
	PrimChar   = "char"
	PrimI8     = "i8"
	PrimI16    = "i16"
	PrimI32    = "i32"
	PrimI64    = "i64"
	PrimI128   = "i128"
	PrimU8     = "u8"
	PrimU16    = "u16"
	PrimU32    = "u32"
	PrimU64    = "u64"
	PrimU128   = "u128"
	PrimF32    = "f32"
	PrimF64    = "f64"
	PrimBytes  = "bytes"
	PrimJSON   = "json"
)

var primitives = map[string]bool{
	PrimBool: true, PrimString: true, PrimChar: true,
	PrimI8: true, PrimI16: true, PrimI32: true, PrimI64: true, PrimI128: true,
	PrimU8: true, PrimU16: true, PrimU32: true, PrimU64: true, PrimU128: true,
	PrimF32: true, PrimF64: true,
	PrimBytes: true, PrimJSON: true,
}

// IsPrimitive reports whether name is a built-in primitive.
func IsPrimitive(name string) bool {
	return primitives[name]
}

// IsInteger reports whether name is a built-in integer primitive.
func IsInteger(name string) bool {
	switch name {
	case PrimI8, PrimI16, PrimI32, PrimI64, PrimI128,
		PrimU8, PrimU16, PrimU32, PrimU64, PrimU128:
		return true
	}
	return false
}

// IsWideInteger reports whether name is an integer that does not fit a
// float64 mantissa.
func IsWideInteger(name string) bool {
	switch name {
	case PrimI64, PrimU64, PrimI128, PrimU128:
		return true
	}
	return false
}
