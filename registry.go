package sdstore

import (
	"fmt"
	"math"
	"strings"
)

// Registry defines and interns the composite and imported types of a file.
//
// Named types are interned: defining a name again with an identical shape
// returns the existing descriptor, while a different shape fails with
// ErrTypeConflict. Anonymous types are never interned.
type Registry struct {
	named    map[string]Type
	order    []Type
	readOnly bool
}

func newRegistry() *Registry {
	return &Registry{
		named: make(map[string]Type),
	}
}

// Lookup returns the named type called name, or nil.
func (r *Registry) Lookup(name string) Type {
	if st := ScalarByName(name); st != nil {
		return st
	}
	return r.named[name]
}

// Named returns all named types in definition order.
func (r *Registry) Named() []Type {
	return append([]Type(nil), r.order...)
}

func (r *Registry) DefineStruct(name string, fields ...Field) (*StructType, error) {
	if len(fields) == 0 {
		return nil, typeErrf(ErrInvalidType, name, "struct needs at least one field")
	}
	seen := make(map[string]bool, len(fields))
	size := 0
	for i, f := range fields {
		if f.Name == "" {
			return nil, typeErrf(ErrInvalidType, name, "field %d has no name", i)
		}
		if seen[f.Name] {
			return nil, typeErrf(ErrInvalidType, name, "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if f.Type == nil {
			return nil, typeErrf(ErrInvalidType, name, "field %q has no type", f.Name)
		}
		size = addSize(size, f.Type.wireSize())
	}
	t := &StructType{
		name:   name,
		fields: append([]Field(nil), fields...),
		size:   size,
	}
	return intern(r, t)
}

func (r *Registry) DefineArray(name string, elem Type, dims ...int) (*ArrayType, error) {
	if elem == nil {
		return nil, typeErrf(ErrInvalidType, name, "array has no element type")
	}
	if len(dims) == 0 {
		return nil, typeErrf(ErrInvalidType, name, "array needs at least one dimension")
	}
	n := 1
	for i, d := range dims {
		if d < 1 {
			return nil, typeErrf(ErrInvalidType, name, "dimension %d is %d, must be at least 1", i, d)
		}
		if n > math.MaxInt/d {
			return nil, typeErrf(ErrInvalidType, name, "too many items")
		}
		n *= d
	}
	size := -1
	if es := elem.wireSize(); es >= 0 {
		if n > math.MaxInt/max(1, es) {
			return nil, typeErrf(ErrInvalidType, name, "%d items of %d bytes are too large", n, es)
		}
		size = n * es
	}
	t := &ArrayType{
		name: name,
		elem: elem,
		dims: append([]int(nil), dims...),
		n:    n,
		size: size,
	}
	return intern(r, t)
}

func (r *Registry) DefineEnum(name string, values ...string) (*EnumType, error) {
	if len(values) == 0 {
		return nil, typeErrf(ErrInvalidType, name, "enum needs at least one value")
	}
	indices := make(map[string]int, len(values))
	for i, v := range values {
		if v == "" {
			return nil, typeErrf(ErrInvalidType, name, "enum value %d is empty", i)
		}
		if _, dup := indices[v]; dup {
			return nil, typeErrf(ErrInvalidType, name, "duplicate enum value %q", v)
		}
		indices[v] = i
	}
	t := &EnumType{
		name:    name,
		values:  append([]string(nil), values...),
		indices: indices,
	}
	return intern(r, t)
}

func (r *Registry) DefineVariant(name string, cases ...Case) (*VariantType, error) {
	if len(cases) == 0 {
		return nil, typeErrf(ErrInvalidType, name, "variant needs at least one case")
	}
	indices := make(map[string]int, len(cases))
	payloadSize := 0
	for i, c := range cases {
		if c.Name == "" {
			return nil, typeErrf(ErrInvalidType, name, "case %d has no name", i)
		}
		if _, dup := indices[c.Name]; dup {
			return nil, typeErrf(ErrInvalidType, name, "duplicate case %q", c.Name)
		}
		indices[c.Name] = i
		if c.Type != nil && payloadSize >= 0 {
			if s := c.Type.wireSize(); s < 0 {
				payloadSize = -1
			} else {
				payloadSize = max(payloadSize, s)
			}
		}
	}
	t := &VariantType{
		name:        name,
		cases:       append([]Case(nil), cases...),
		indices:     indices,
		payloadSize: payloadSize,
	}
	return intern(r, t)
}

func (r *Registry) DefineImported(name string, size int) (*ImportedType, error) {
	if size < 1 {
		return nil, typeErrf(ErrInvalidType, name, "imported size is %d, must be at least 1", size)
	}
	return intern(r, &ImportedType{name: name, size: size})
}

func (r *Registry) DefineVSizeImported(name string, sizer Sizeable, serializer Serializable) (*VSizeImportedType, error) {
	if (sizer == nil) != (serializer == nil) {
		return nil, typeErrf(ErrInvalidType, name, "size and serialize callbacks must be provided together")
	}
	t := &VSizeImportedType{
		name:       name,
		sizer:      sizer,
		serializer: serializer,
	}
	return intern(r, t)
}

func intern[T Type](r *Registry, t T) (T, error) {
	var zero T
	if r.readOnly {
		return zero, fmt.Errorf("defining type %s: %w", t.String(), ErrReadOnly)
	}
	name := t.Name()
	if strings.TrimSpace(name) != name {
		return zero, typeErrf(ErrInvalidType, name, "type name has surrounding spaces")
	}
	if ScalarByName(name) != nil {
		return zero, typeErrf(ErrTypeConflict, name, "name of a predefined scalar")
	}
	prior := r.named[name]
	if name == "" || prior == nil {
		if err := r.adopt(nestedTypes(t)...); err != nil {
			return zero, err
		}
		if name != "" {
			r.add(t)
		}
		return t, nil
	}
	if !SameShape(prior, t) {
		return zero, typeErrf(ErrTypeConflict, name, "already defined as %s, cannot redefine as %s", Spelling(prior), Spelling(t))
	}
	if vs, ok := any(t).(*VSizeImportedType); ok && vs.HasCallbacks() {
		pvs := prior.(*VSizeImportedType)
		pvs.sizer, pvs.serializer = vs.sizer, vs.serializer
	}
	return prior.(T), nil
}

func (r *Registry) add(t Type) {
	r.named[t.Name()] = t
	r.order = append(r.order, t)
}

// addSize sums wire sizes where -1 marks a variable size.
func addSize(a, b int) int {
	if a < 0 || b < 0 {
		return -1
	}
	return a + b
}

// adopt makes the named types referenced by types known to r, so that
// elements may use descriptors defined by another registry. On conflict r is
// left as it was.
func (r *Registry) adopt(types ...Type) error {
	n := len(r.order)
	for _, t := range types {
		if err := r.adoptOne(t); err != nil {
			for _, added := range r.order[n:] {
				delete(r.named, added.Name())
			}
			clear(r.order[n:])
			r.order = r.order[:n]
			return err
		}
	}
	return nil
}

func (r *Registry) adoptOne(t Type) error {
	if t == nil {
		return nil
	}
	for _, nested := range nestedTypes(t) {
		if err := r.adoptOne(nested); err != nil {
			return err
		}
	}
	name := t.Name()
	if name == "" || t.Kind() == TypeScalar {
		return nil
	}
	prior := r.named[name]
	switch {
	case prior == nil:
		r.add(t)
	case prior != t && !SameShape(prior, t):
		return typeErrf(ErrTypeConflict, name, "already defined as %s, cannot use %s", Spelling(prior), Spelling(t))
	}
	return nil
}

// nestedTypes lists the types t is directly composed of.
func nestedTypes(t Type) []Type {
	switch t := t.(type) {
	case *StructType:
		out := make([]Type, len(t.fields))
		for i, f := range t.fields {
			out[i] = f.Type
		}
		return out
	case *ArrayType:
		return []Type{t.elem}
	case *VariantType:
		var out []Type
		for _, c := range t.cases {
			if c.Type != nil {
				out = append(out, c.Type)
			}
		}
		return out
	default:
		return nil
	}
}
