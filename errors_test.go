package sdstore

import (
	"errors"
	"strings"
	"testing"
)

func TestDataError_ErrorAndUnwrap(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := dataErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %T, wanted *DataError", err)
		}
		if !errors.Is(err, inner) {
			t.Fatalf("errors.Is(err, inner) = false, wanted true")
		}
		if !errors.Is(err, ErrFormat) {
			t.Fatalf("errors.Is(err, ErrFormat) = false, wanted true")
		}
		s := err.Error()
		if !strings.Contains(s, "oops") || !strings.Contains(s, "inner") || !strings.Contains(s, "(2)") {
			t.Fatalf("err.Error() = %q, wanted message with oops/inner/(2)", s)
		}
	})

	t.Run("large data includes prefix+suffix", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = byte(i)
		}
		err := dataErrf(data, 0, nil, "oops")
		s := err.Error()
		if !strings.Contains(s, "(200)") || !strings.Contains(s, "...") {
			t.Fatalf("err.Error() = %q, wanted message with (200) and ...", s)
		}
	})
}

func TestElementError(t *testing.T) {
	f := &File{types: newRegistry(), mode: ModeEdit}
	top := &Element{file: f, name: "top"}
	leaf := &Element{file: f, parent: top, name: "leaf"}

	err := elemErrf(leaf, ErrDuplicateName, "element %q already exists", "x")
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("errors.Is(err, ErrDuplicateName) = false, wanted true")
	}
	if s := err.Error(); s != `top/leaf: element "x" already exists: duplicate name` {
		t.Fatalf("err.Error() = %q", s)
	}

	s := elemErrf(nil, ErrNotFound, "").Error()
	if s != "sdfile: not found" {
		t.Fatalf("elemErrf(nil) = %q, wanted %q", s, "sdfile: not found")
	}
}

func TestValueError(t *testing.T) {
	err := valueErrf(Uint16, ".f2", 10.1, "wanted an integer")
	if !errors.Is(err, ErrValueDomain) {
		t.Fatalf("errors.Is(err, ErrValueDomain) = false, wanted true")
	}
	if s := err.Error(); s != "invalid uint16 value at .f2 (float64 10.1): wanted an integer" {
		t.Fatalf("err.Error() = %q", s)
	}

	inner := errors.New("boom")
	err = &ValueError{Type: Bool, Value: 3, Msg: "Size failed", Err: inner}
	if !errors.Is(err, inner) || !errors.Is(err, ErrValueDomain) {
		t.Fatalf("errors.Is failed for %v", err)
	}
}

func TestTypeErrf(t *testing.T) {
	err := typeErrf(ErrTypeConflict, "Vec3", "already defined")
	if !errors.Is(err, ErrTypeConflict) {
		t.Fatalf("errors.Is(err, ErrTypeConflict) = false, wanted true")
	}
	if s := err.Error(); s != "type conflict: Vec3: already defined" {
		t.Fatalf("err.Error() = %q", s)
	}
	if s := typeErrf(ErrInvalidType, "", "bad").Error(); s != "invalid type definition: bad" {
		t.Fatalf("anonymous err.Error() = %q", s)
	}
}
