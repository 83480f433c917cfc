package sdstore

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScalarByName(t *testing.T) {
	names := []string{"char", "bool", "int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64", "float32", "float64"}
	for i, name := range names {
		st := ScalarByName(name)
		if st == nil {
			t.Fatalf("ScalarByName(%q) = nil", name)
		}
		if st.Name() != name || st.Kind() != TypeScalar {
			t.Errorf("ScalarByName(%q) = %v (%v)", name, st, st.Kind())
		}
		if scalarByKind(st.ScalarKind()) != st {
			t.Errorf("scalarByKind(%d) != %v", st.ScalarKind(), st)
		}
		if int(st.ScalarKind()) != i+1 {
			t.Errorf("%s kind = %d, wanted %d", name, st.ScalarKind(), i+1)
		}
	}
	if st := ScalarByName("int128"); st != nil {
		t.Errorf("ScalarByName(int128) = %v, wanted nil", st)
	}
}

func TestSpelling(t *testing.T) {
	r := newRegistry()
	vec := must(r.DefineArray("Vec3", Float32, 3))
	mode := must(r.DefineEnum("Mode", "Off", "On"))
	st := must(r.DefineStruct("Sample", Field{"pos", vec}, Field{"mode", mode}, Field{"ok", Bool}))
	vt := must(r.DefineVariant("", Case{"Empty", nil}, Case{"Full", st}))
	grid := must(r.DefineArray("", Int8, 2, 3))

	tests := []struct {
		typ      Type
		spelling string
		str      string
		sig      string
	}{
		{Int8, "int8", "int8", "int8"},
		{vec, "float32[3]", "Vec3", "Vec3=float32[3]"},
		{mode, "enum {Off, On}", "Mode", "Mode=enum {Off, On}"},
		{st, "struct {pos: Vec3, mode: Mode, ok: bool}", "Sample", "Sample=struct {pos: Vec3=float32[3], mode: Mode=enum {Off, On}, ok: bool}"},
		{vt, "variant {Empty, Full: Sample}", "variant {Empty, Full: Sample}", "variant {Empty, Full: Sample=struct {pos: Vec3=float32[3], mode: Mode=enum {Off, On}, ok: bool}}"},
		{grid, "int8[2, 3]", "int8[2, 3]", "int8[2, 3]"},
		{must(r.DefineImported("", 16)), "imported(16)", "imported(16)", "imported(16)"},
		{must(r.DefineVSizeImported("Blob", nil, nil)), "vsize_imported", "Blob", "Blob=vsize_imported"},
	}
	for _, tt := range tests {
		if got := Spelling(tt.typ); got != tt.spelling {
			t.Errorf("Spelling = %q, wanted %q", got, tt.spelling)
		}
		if got := tt.typ.String(); got != tt.str {
			t.Errorf("String = %q, wanted %q", got, tt.str)
		}
		if got := signature(tt.typ); got != tt.sig {
			t.Errorf("signature = %q, wanted %q", got, tt.sig)
		}
	}
}

func TestRegistry_interning(t *testing.T) {
	r := newRegistry()
	a := must(r.DefineStruct("P", Field{"x", Int32}, Field{"y", Int32}))
	b := must(r.DefineStruct("P", Field{"x", Int32}, Field{"y", Int32}))
	if a != b {
		t.Errorf("redefining an identical named type returned a new descriptor")
	}

	_, err := r.DefineStruct("P", Field{"x", Int32}, Field{"y", Int64})
	if !errors.Is(err, ErrTypeConflict) {
		t.Errorf("conflicting redefinition err = %v, wanted ErrTypeConflict", err)
	}
	_, err = r.DefineEnum("P", "A")
	if !errors.Is(err, ErrTypeConflict) {
		t.Errorf("redefinition with another kind err = %v, wanted ErrTypeConflict", err)
	}

	anon1 := must(r.DefineArray("", Int8, 4))
	anon2 := must(r.DefineArray("", Int8, 4))
	if anon1 == anon2 {
		t.Errorf("anonymous types must not be interned")
	}
	if !SameShape(anon1, anon2) {
		t.Errorf("SameShape(anon1, anon2) = false")
	}

	if r.Lookup("P") != a {
		t.Errorf("Lookup(P) = %v", r.Lookup("P"))
	}
	if r.Lookup("uint16") != Uint16 {
		t.Errorf("Lookup(uint16) = %v", r.Lookup("uint16"))
	}
	if r.Lookup("Q") != nil {
		t.Errorf("Lookup(Q) = %v, wanted nil", r.Lookup("Q"))
	}
	if diff := cmp.Diff([]string{"P"}, typeNames(r.Named())); diff != "" {
		t.Errorf("Named mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_scalarNamesAreReserved(t *testing.T) {
	r := newRegistry()
	if _, err := r.DefineImported("int8", 1); !errors.Is(err, ErrTypeConflict) {
		t.Errorf("err = %v, wanted ErrTypeConflict", err)
	}
}

func TestRegistry_invalidDefinitions(t *testing.T) {
	r := newRegistry()
	errs := []error{
		second(r.DefineStruct("S")),
		second(r.DefineStruct("S", Field{"", Int8})),
		second(r.DefineStruct("S", Field{"a", Int8}, Field{"a", Int16})),
		second(r.DefineStruct("S", Field{"a", nil})),
		second(r.DefineArray("A", nil, 2)),
		second(r.DefineArray("A", Int8)),
		second(r.DefineArray("A", Int8, 2, 0)),
		second(r.DefineEnum("E")),
		second(r.DefineEnum("E", "A", "A")),
		second(r.DefineEnum("E", "")),
		second(r.DefineVariant("V")),
		second(r.DefineVariant("V", Case{"A", nil}, Case{"A", Int8})),
		second(r.DefineImported("I", 0)),
		second(r.DefineVSizeImported("B", SizeFunc(func(any) (int, error) { return 0, nil }), nil)),
		second(r.DefineImported(" I", 1)),
		second(r.DefineArray("A", Int8, math.MaxInt, 2)),
		second(r.DefineArray("A", Int64, math.MaxInt/4)),
	}
	for i, err := range errs {
		if !errors.Is(err, ErrInvalidType) {
			t.Errorf("definition %d err = %v, wanted ErrInvalidType", i, err)
		}
	}
	if n := len(r.Named()); n != 0 {
		t.Errorf("failed definitions registered %d types", n)
	}
}

func TestRegistry_readOnly(t *testing.T) {
	r := newRegistry()
	r.readOnly = true
	if _, err := r.DefineEnum("E", "A"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("err = %v, wanted ErrReadOnly", err)
	}
}

func TestRegistry_vsizeCallbacksAreAttached(t *testing.T) {
	r := newRegistry()
	bare := must(r.DefineVSizeImported("Blob", nil, nil))
	if bare.HasCallbacks() {
		t.Fatalf("HasCallbacks = true")
	}
	sizer := SizeFunc(func(v any) (int, error) { return 1, nil })
	serializer := SerializeFunc(func(v any, dst []byte) error { dst[0] = 7; return nil })
	full := must(r.DefineVSizeImported("Blob", sizer, serializer))
	if full != bare || !bare.HasCallbacks() {
		t.Errorf("callbacks were not attached to the interned descriptor")
	}
}

func TestRegistry_adopt(t *testing.T) {
	other := newRegistry()
	vec := must(other.DefineArray("Vec", Int16, 2))
	st := must(other.DefineStruct("Pair", Field{"a", vec}, Field{"b", vec}))

	r := newRegistry()
	ensure(r.adopt(st))
	if diff := cmp.Diff([]string{"Vec", "Pair"}, typeNames(r.Named())); diff != "" {
		t.Errorf("Named mismatch (-want +got):\n%s", diff)
	}
	ensure(r.adopt(st))
	if n := len(r.Named()); n != 2 {
		t.Errorf("adopting twice registered %d types", n)
	}

	// defining a type adopts the foreign named types it is built from
	outer := must(r.DefineArray("Outer", must(newRegistry().DefineEnum("Level", "Lo", "Hi")), 2))
	if r.Lookup("Level") == nil || r.Lookup("Outer") != outer {
		t.Errorf("nested named type was not adopted")
	}

	third := newRegistry()
	clash := must(third.DefineArray("Vec", Int16, 3))
	if err := r.adopt(clash); !errors.Is(err, ErrTypeConflict) {
		t.Errorf("adopt(clash) err = %v, wanted ErrTypeConflict", err)
	}

	fourth := newRegistry()
	same := must(fourth.DefineStruct("Pair2", Field{"v", must(fourth.DefineArray("Vec", Int16, 2))}))
	ensure(r.adopt(same))
	if diff := cmp.Diff([]string{"Vec", "Pair", "Level", "Outer", "Pair2"}, typeNames(r.Named())); diff != "" {
		t.Errorf("Named mismatch (-want +got):\n%s", diff)
	}
	if r.Lookup("Vec") != vec {
		t.Errorf("adopt replaced an existing descriptor")
	}
}

func TestRegistry_conflictAdoptsNothing(t *testing.T) {
	r := newRegistry()
	must(r.DefineEnum("B", "z"))

	other := newRegistry()
	a := must(other.DefineEnum("A", "x"))
	b := must(other.DefineEnum("B", "y"))
	if _, err := r.DefineStruct("S", Field{"a", a}, Field{"b", b}); !errors.Is(err, ErrTypeConflict) {
		t.Fatalf("DefineStruct err = %v, wanted ErrTypeConflict", err)
	}
	if err := r.adopt(a, b); !errors.Is(err, ErrTypeConflict) {
		t.Fatalf("adopt err = %v, wanted ErrTypeConflict", err)
	}
	if diff := cmp.Diff([]string{"B"}, typeNames(r.Named())); diff != "" {
		t.Errorf("Named mismatch (-want +got):\n%s", diff)
	}
	if r.Lookup("A") != nil || r.Lookup("S") != nil {
		t.Errorf("failed definition left types behind")
	}

	// the registry stays usable
	must(r.DefineStruct("S", Field{"a", a}))
	if diff := cmp.Diff([]string{"B", "A", "S"}, typeNames(r.Named())); diff != "" {
		t.Errorf("Named mismatch (-want +got):\n%s", diff)
	}
}

func TestSameShape(t *testing.T) {
	r1, r2 := newRegistry(), newRegistry()
	a := must(r1.DefineVariant("V", Case{"A", nil}, Case{"B", Int8}))
	b := must(r2.DefineVariant("V", Case{"A", nil}, Case{"B", Int8}))
	c := must(r2.DefineVariant("W", Case{"A", nil}, Case{"B", Uint8}))
	if !SameShape(a, b) {
		t.Errorf("SameShape(a, b) = false")
	}
	if SameShape(a, c) {
		t.Errorf("SameShape(a, c) = true")
	}
	if SameShape(Int8, Uint8) || !SameShape(Int8, Int8) {
		t.Errorf("scalar SameShape is wrong")
	}

	// nested named types must agree on names
	n1 := must(r1.DefineArray("N1", Int8, 2))
	n2 := must(r1.DefineArray("N2", Int8, 2))
	s1 := must(r1.DefineStruct("", Field{"f", n1}))
	s2 := must(r1.DefineStruct("", Field{"f", n2}))
	if SameShape(s1, s2) {
		t.Errorf("SameShape(s1, s2) = true")
	}
}

func TestWireSize(t *testing.T) {
	r := newRegistry()
	tests := []struct {
		typ  Type
		size int
	}{
		{Char, 1},
		{Float64, 8},
		{must(r.DefineStruct("", Field{"a", Int8}, Field{"b", Uint32})), 5},
		{must(r.DefineArray("", Int16, 3, 4)), 24},
		{must(r.DefineEnum("", "A", "B")), 1},
		{must(r.DefineVariant("", Case{"A", nil}, Case{"B", Int64}, Case{"C", Int8})), 9},
		{must(r.DefineVariant("", Case{"A", nil})), 1},
		{must(r.DefineVariant("", Case{"A", must(r.DefineVSizeImported("", nil, nil))})), -1},
		{must(r.DefineImported("", 5)), 5},
		{must(r.DefineArray("", must(r.DefineVSizeImported("", nil, nil)), 2)), -1},
	}
	for i, tt := range tests {
		if got := tt.typ.wireSize(); got != tt.size {
			t.Errorf("%d: wireSize(%v) = %d, wanted %d", i, tt.typ, got, tt.size)
		}
	}
}

func TestAllowsAbsence(t *testing.T) {
	r := newRegistry()
	yes := []Type{Int8, Char, must(r.DefineArray("", Float64, 2, 2))}
	no := []Type{
		must(r.DefineStruct("", Field{"a", Int8})),
		must(r.DefineEnum("", "A")),
		must(r.DefineArray("", must(r.DefineEnum("", "A")), 2)),
		must(r.DefineImported("", 1)),
	}
	for _, typ := range yes {
		if !allowsAbsence(typ) {
			t.Errorf("allowsAbsence(%v) = false", typ)
		}
	}
	for _, typ := range no {
		if allowsAbsence(typ) {
			t.Errorf("allowsAbsence(%v) = true", typ)
		}
	}
}

func typeNames(types []Type) []string {
	var out []string
	for _, t := range types {
		out = append(out, t.Name())
	}
	return out
}

func second[T any](_ T, err error) error {
	return err
}
