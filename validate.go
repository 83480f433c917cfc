package sdstore

import (
	"encoding"
	"fmt"
	"reflect"
)

// integerOf returns v as a signed or unsigned 64-bit integer. Floats,
// bools and strings are not integers even when their value is integral.
func integerOf(v any) (i int64, u uint64, unsigned bool, ok bool) {
	switch v := v.(type) {
	case int:
		return int64(v), 0, false, true
	case int64:
		return v, 0, false, true
	case int32:
		return int64(v), 0, false, true
	case uint8:
		return 0, uint64(v), true, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), 0, false, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return 0, rv.Uint(), true, true
	default:
		return 0, 0, false, false
	}
}

// floatOf accepts floats and integers of any width.
func floatOf(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	default:
		return 0, false
	}
}

func boolOf(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Bool {
		return rv.Bool(), true
	}
	if i, u, unsigned, ok := integerOf(v); ok {
		switch {
		case unsigned && u <= 1:
			return u == 1, true
		case !unsigned && (i == 0 || i == 1):
			return i == 1, true
		}
	}
	return false, false
}

func stringOf(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

// sequenceOf returns the items of a slice or array. Strings are not
// sequences.
func sequenceOf(v any) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv, true
	default:
		return reflect.Value{}, false
	}
}

// rawBytesOf accepts byte slices and byte arrays, including named ones.
func rawBytesOf(v any) ([]byte, bool) {
	if b, ok := v.([]byte); ok {
		return b, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), true
		}
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return b, true
		}
	}
	return nil, false
}

func bytesOf(typ Type, v any, path string) ([]byte, error) {
	if b, ok := rawBytesOf(v); ok {
		return b, nil
	}
	if m, ok := v.(encoding.BinaryMarshaler); ok {
		var data []byte
		err := guard(typ, path, v, "MarshalBinary", func() (err error) {
			data, err = m.MarshalBinary()
			return err
		})
		return data, err
	}
	return nil, valueErrf(typ, path, v, "wanted raw bytes or an encoding.BinaryMarshaler")
}

// guard runs an externally supplied callback, turning its errors and panics
// into value errors.
func guard(typ Type, path string, v any, what string, f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ValueError{Type: typ, Path: path, Value: v, Msg: fmt.Sprintf("%s panicked: %v", what, p)}
		}
	}()
	if e := f(); e != nil {
		return &ValueError{Type: typ, Path: path, Value: v, Msg: what + " failed", Err: e}
	}
	return nil
}

// Validate checks that v is a valid value of type t without encoding it
// anywhere. A nil v is valid when t permits absent samples.
func Validate(t Type, v any) error {
	if v == nil {
		if allowsAbsence(t) {
			return nil
		}
		return valueErrf(t, "", v, "absent samples are not supported by this type")
	}
	_, err := t.appendValue(nil, v, "")
	return err
}
