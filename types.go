package sdstore

import (
	"strconv"
	"strings"
)

type TypeKind uint8

const (
	TypeScalar TypeKind = iota + 1
	TypeStruct
	TypeArray
	TypeEnum
	TypeVariant
	TypeImported
	TypeVSizeImported
)

func (k TypeKind) String() string {
	switch k {
	case TypeScalar:
		return "scalar"
	case TypeStruct:
		return "struct"
	case TypeArray:
		return "array"
	case TypeEnum:
		return "enum"
	case TypeVariant:
		return "variant"
	case TypeImported:
		return "imported"
	case TypeVSizeImported:
		return "vsize_imported"
	default:
		return "TypeKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Type describes the shape of the values recorded for an element.
//
// Descriptors are immutable. Named descriptors are interned by the Registry
// that defined them; anonymous ones are compared structurally.
type Type interface {
	// Name is the qualified name of the type, or "" for anonymous types.
	Name() string
	Kind() TypeKind
	// String returns the name of named types and the structural spelling
	// of anonymous ones.
	String() string

	// spell renders the structure of the type itself; nested named types
	// are referenced by name unless expand is set.
	spell(buf *strings.Builder, expand bool)
	// wireSize is the number of bytes of one encoded value, or -1 when
	// encoded values vary in size.
	wireSize() int
	appendValue(buf []byte, v any, path string) ([]byte, error)
	decodeValue(d *byteDecoder) (any, error)
}

type ScalarKind uint8

const (
	ScalarChar ScalarKind = iota + 1
	ScalarBool
	ScalarInt8
	ScalarInt16
	ScalarInt32
	ScalarInt64
	ScalarUint8
	ScalarUint16
	ScalarUint32
	ScalarUint64
	ScalarFloat32
	ScalarFloat64

	maxScalarKind = ScalarFloat64
)

// ScalarType is one of the predefined scalar descriptors. Scalars are
// process-wide constants shared by all files.
type ScalarType struct {
	kind   ScalarKind
	name   string
	bits   int
	signed bool
}

var (
	Char    = &ScalarType{ScalarChar, "char", 8, false}
	Bool    = &ScalarType{ScalarBool, "bool", 8, false}
	Int8    = &ScalarType{ScalarInt8, "int8", 8, true}
	Int16   = &ScalarType{ScalarInt16, "int16", 16, true}
	Int32   = &ScalarType{ScalarInt32, "int32", 32, true}
	Int64   = &ScalarType{ScalarInt64, "int64", 64, true}
	Uint8   = &ScalarType{ScalarUint8, "uint8", 8, false}
	Uint16  = &ScalarType{ScalarUint16, "uint16", 16, false}
	Uint32  = &ScalarType{ScalarUint32, "uint32", 32, false}
	Uint64  = &ScalarType{ScalarUint64, "uint64", 64, false}
	Float32 = &ScalarType{ScalarFloat32, "float32", 32, true}
	Float64 = &ScalarType{ScalarFloat64, "float64", 64, true}

	scalars = [...]*ScalarType{nil, Char, Bool, Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Float32, Float64}
)

// ScalarByName returns the predefined scalar called name, or nil.
func ScalarByName(name string) *ScalarType {
	for _, st := range scalars[1:] {
		if st.name == name {
			return st
		}
	}
	return nil
}

func scalarByKind(k ScalarKind) *ScalarType {
	if k == 0 || k > maxScalarKind {
		return nil
	}
	return scalars[k]
}

func (st *ScalarType) Name() string                       { return st.name }
func (st *ScalarType) Kind() TypeKind                     { return TypeScalar }
func (st *ScalarType) String() string                     { return st.name }
func (st *ScalarType) ScalarKind() ScalarKind             { return st.kind }
func (st *ScalarType) Bits() int                          { return st.bits }
func (st *ScalarType) spell(buf *strings.Builder, _ bool) { buf.WriteString(st.name) }
func (st *ScalarType) wireSize() int                      { return st.bits / 8 }
func (st *ScalarType) isInteger() bool                    { return st.kind >= ScalarInt8 && st.kind <= ScalarUint64 }
func (st *ScalarType) isFloat() bool                      { return st.kind == ScalarFloat32 || st.kind == ScalarFloat64 }

// Field is a named member of a struct type.
type Field struct {
	Name string
	Type Type
}

type StructType struct {
	name   string
	fields []Field
	size   int
}

func (t *StructType) Name() string      { return t.name }
func (t *StructType) Kind() TypeKind    { return TypeStruct }
func (t *StructType) String() string    { return typeString(t) }
func (t *StructType) wireSize() int     { return t.size }
func (t *StructType) NumFields() int    { return len(t.fields) }
func (t *StructType) Field(i int) Field { return t.fields[i] }

func (t *StructType) Fields() []Field {
	return append([]Field(nil), t.fields...)
}

func (t *StructType) spell(buf *strings.Builder, expand bool) {
	buf.WriteString("struct {")
	for i, f := range t.fields {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(f.Name)
		buf.WriteString(": ")
		spellRef(buf, f.Type, expand)
	}
	buf.WriteByte('}')
}

type ArrayType struct {
	name string
	elem Type
	dims []int
	n    int
	size int
}

func (t *ArrayType) Name() string   { return t.name }
func (t *ArrayType) Kind() TypeKind { return TypeArray }
func (t *ArrayType) String() string { return typeString(t) }
func (t *ArrayType) wireSize() int  { return t.size }
func (t *ArrayType) Elem() Type     { return t.elem }

// Len is the total number of leaf items, i.e. the product of all dims.
func (t *ArrayType) Len() int { return t.n }

func (t *ArrayType) Dims() []int {
	return append([]int(nil), t.dims...)
}

func (t *ArrayType) spell(buf *strings.Builder, expand bool) {
	spellRef(buf, t.elem, expand)
	buf.WriteByte('[')
	for i, d := range t.dims {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(strconv.Itoa(d))
	}
	buf.WriteByte(']')
}

type EnumType struct {
	name    string
	values  []string
	indices map[string]int
}

func (t *EnumType) Name() string   { return t.name }
func (t *EnumType) Kind() TypeKind { return TypeEnum }
func (t *EnumType) String() string { return typeString(t) }
func (t *EnumType) wireSize() int  { return tagSize(len(t.values)) }

func (t *EnumType) Values() []string {
	return append([]string(nil), t.values...)
}

func (t *EnumType) spell(buf *strings.Builder, _ bool) {
	buf.WriteString("enum {")
	buf.WriteString(strings.Join(t.values, ", "))
	buf.WriteByte('}')
}

// Case is an alternative of a variant type. A nil Type makes a unit case
// that carries no payload.
type Case struct {
	Name string
	Type Type
}

type VariantType struct {
	name        string
	cases       []Case
	indices     map[string]int
	payloadSize int
}

func (t *VariantType) Name() string   { return t.name }
func (t *VariantType) Kind() TypeKind { return TypeVariant }
func (t *VariantType) String() string { return typeString(t) }

func (t *VariantType) Cases() []Case {
	return append([]Case(nil), t.cases...)
}

// CaseNamed returns the case called name and whether it exists.
func (t *VariantType) CaseNamed(name string) (Case, bool) {
	i, ok := t.indices[name]
	if !ok {
		return Case{}, false
	}
	return t.cases[i], true
}

func (t *VariantType) wireSize() int {
	if t.payloadSize < 0 {
		return -1
	}
	return tagSize(len(t.cases)) + t.payloadSize
}

func (t *VariantType) spell(buf *strings.Builder, expand bool) {
	buf.WriteString("variant {")
	for i, c := range t.cases {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(c.Name)
		if c.Type != nil {
			buf.WriteString(": ")
			spellRef(buf, c.Type, expand)
		}
	}
	buf.WriteByte('}')
}

// ImportedType is an opaque fixed-size payload encoded outside of the store.
type ImportedType struct {
	name string
	size int
}

func (t *ImportedType) Name() string   { return t.name }
func (t *ImportedType) Kind() TypeKind { return TypeImported }
func (t *ImportedType) String() string { return typeString(t) }
func (t *ImportedType) wireSize() int  { return t.size }
func (t *ImportedType) Size() int      { return t.size }

func (t *ImportedType) spell(buf *strings.Builder, _ bool) {
	buf.WriteString("imported(")
	buf.WriteString(strconv.Itoa(t.size))
	buf.WriteByte(')')
}

// Sizeable reports the number of bytes a value of a variable-size imported
// type serializes to.
type Sizeable interface {
	Size(v any) (int, error)
}

// Serializable writes a value of a variable-size imported type into dst,
// which is exactly as long as the corresponding Sizeable reported.
type Serializable interface {
	Serialize(v any, dst []byte) error
}

type SizeFunc func(v any) (int, error)

func (f SizeFunc) Size(v any) (int, error) { return f(v) }

type SerializeFunc func(v any, dst []byte) error

func (f SerializeFunc) Serialize(v any, dst []byte) error { return f(v, dst) }

// VSizeImportedType is an opaque payload whose size varies per sample.
// Callbacks are not persisted: a reopened file carries the type without
// them until it is defined again under the same name.
type VSizeImportedType struct {
	name       string
	sizer      Sizeable
	serializer Serializable
}

func (t *VSizeImportedType) Name() string   { return t.name }
func (t *VSizeImportedType) Kind() TypeKind { return TypeVSizeImported }
func (t *VSizeImportedType) String() string { return typeString(t) }
func (t *VSizeImportedType) wireSize() int  { return -1 }

// HasCallbacks reports whether values other than pre-serialized []byte can
// be appended.
func (t *VSizeImportedType) HasCallbacks() bool {
	return t.sizer != nil && t.serializer != nil
}

func (t *VSizeImportedType) spell(buf *strings.Builder, _ bool) {
	buf.WriteString("vsize_imported")
}

func typeString(t Type) string {
	if name := t.Name(); name != "" {
		return name
	}
	var buf strings.Builder
	t.spell(&buf, false)
	return buf.String()
}

func spellRef(buf *strings.Builder, t Type, expand bool) {
	if name := t.Name(); name != "" && !expand {
		buf.WriteString(name)
		return
	}
	if expand && t.Kind() != TypeScalar && t.Name() != "" {
		buf.WriteString(t.Name())
		buf.WriteByte('=')
	}
	t.spell(buf, expand)
}

// Spelling returns the structure of t with nested named types referenced
// by name, e.g. "struct {pos: Vec3, valid: bool}".
func Spelling(t Type) string {
	var buf strings.Builder
	t.spell(&buf, false)
	return buf.String()
}

// signature spells t with every nested type expanded, so two types share a
// signature exactly when they encode values identically.
func signature(t Type) string {
	var buf strings.Builder
	spellRef(&buf, t, true)
	return buf.String()
}

// allowsAbsence reports whether a whole sample of type t may be recorded as
// absent. Only scalars and arrays of scalars qualify.
func allowsAbsence(t Type) bool {
	switch t := t.(type) {
	case *ScalarType:
		return true
	case *ArrayType:
		return allowsAbsence(t.elem)
	default:
		return false
	}
}

// anyBytesValid reports whether every byte pattern of the right length is a
// valid encoding of t, so that stored samples need no decoding to be checked.
func anyBytesValid(t Type) bool {
	switch t := t.(type) {
	case *ScalarType:
		return t.kind != ScalarBool
	case *ImportedType:
		return true
	case *ArrayType:
		return anyBytesValid(t.elem)
	case *StructType:
		for _, f := range t.fields {
			if !anyBytesValid(f.Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SameShape reports whether a and b describe identical values. Nested named
// types must also agree on their names. Variable-size imported types are
// equal regardless of their callbacks.
func SameShape(a, b Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind() != b.Kind() {
		return false
	}
	switch a := a.(type) {
	case *ScalarType:
		return false // scalars are singletons
	case *StructType:
		b := b.(*StructType)
		if len(a.fields) != len(b.fields) {
			return false
		}
		for i, f := range a.fields {
			if f.Name != b.fields[i].Name || !sameRef(f.Type, b.fields[i].Type) {
				return false
			}
		}
		return true
	case *ArrayType:
		b := b.(*ArrayType)
		if len(a.dims) != len(b.dims) || !sameRef(a.elem, b.elem) {
			return false
		}
		for i, d := range a.dims {
			if d != b.dims[i] {
				return false
			}
		}
		return true
	case *EnumType:
		b := b.(*EnumType)
		if len(a.values) != len(b.values) {
			return false
		}
		for i, v := range a.values {
			if v != b.values[i] {
				return false
			}
		}
		return true
	case *VariantType:
		b := b.(*VariantType)
		if len(a.cases) != len(b.cases) {
			return false
		}
		for i, c := range a.cases {
			bc := b.cases[i]
			if c.Name != bc.Name || (c.Type == nil) != (bc.Type == nil) {
				return false
			}
			if c.Type != nil && !sameRef(c.Type, bc.Type) {
				return false
			}
		}
		return true
	case *ImportedType:
		return a.size == b.(*ImportedType).size
	case *VSizeImportedType:
		return true
	default:
		return false
	}
}

func sameRef(a, b Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Name() != b.Name() {
		return false
	}
	return SameShape(a, b)
}

// tagSize is the width of an index into n alternatives.
func tagSize(n int) int {
	switch {
	case n <= 1<<8:
		return 1
	case n <= 1<<16:
		return 2
	default:
		return 4
	}
}
