package sdstore

import (
	"encoding/binary"
	"math"
	"strconv"
	"unicode/utf8"
)

// VariantValue is a sample of a variant type. Unit cases may also be given
// as a plain string holding the case name, and decode that way.
type VariantValue struct {
	Case  string
	Value any
}

// Encode validates v against t and returns its wire encoding. Encodings are
// self-delimiting given t.
func Encode(t Type, v any) ([]byte, error) {
	if v == nil {
		return nil, valueErrf(t, "", v, "absent value cannot be encoded")
	}
	return t.appendValue(nil, v, "")
}

// Decode decodes exactly one value of type t from data.
func Decode(t Type, data []byte) (any, error) {
	d := makeByteDecoder(data)
	v, err := t.decodeValue(&d)
	if err != nil {
		return nil, err
	}
	if !d.Done() {
		return nil, dataErrf(data, d.Off(), nil, "%d trailing bytes after %s value", len(d.Buf), t.String())
	}
	return v, nil
}

func appendFixed(buf []byte, u uint64, n int) []byte {
	switch n {
	case 1:
		return append(buf, byte(u))
	case 2:
		return binary.LittleEndian.AppendUint16(buf, uint16(u))
	case 4:
		return binary.LittleEndian.AppendUint32(buf, uint32(u))
	default:
		return binary.LittleEndian.AppendUint64(buf, u)
	}
}

func (st *ScalarType) appendValue(buf []byte, v any, path string) ([]byte, error) {
	switch {
	case st.kind == ScalarChar:
		s, ok := stringOf(v)
		if !ok {
			return nil, valueErrf(st, path, v, "wanted a one-character string")
		}
		r, size := utf8.DecodeRuneInString(s)
		if s == "" || size != len(s) || (r == utf8.RuneError && size == 1) {
			return nil, valueErrf(st, path, v, "wanted exactly one character")
		}
		if r > 0xFF {
			return nil, valueErrf(st, path, v, "character U+%04X does not fit into 8 bits", r)
		}
		return append(buf, byte(r)), nil

	case st.kind == ScalarBool:
		b, ok := boolOf(v)
		if !ok {
			return nil, valueErrf(st, path, v, "wanted a bool")
		}
		if b {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil

	case st.isInteger():
		i, u, unsigned, ok := integerOf(v)
		if !ok {
			return nil, valueErrf(st, path, v, "wanted an integer")
		}
		if st.signed {
			hi := int64(math.MaxInt64 >> (64 - st.bits))
			lo := -hi - 1
			if unsigned {
				if u > uint64(hi) {
					return nil, valueErrf(st, path, v, "out of range")
				}
				i = int64(u)
			} else if i < lo || i > hi {
				return nil, valueErrf(st, path, v, "out of range")
			}
			return appendFixed(buf, uint64(i), st.bits/8), nil
		}
		hi := uint64(math.MaxUint64) >> (64 - st.bits)
		if !unsigned {
			if i < 0 {
				return nil, valueErrf(st, path, v, "out of range")
			}
			u = uint64(i)
		}
		if u > hi {
			return nil, valueErrf(st, path, v, "out of range")
		}
		return appendFixed(buf, u, st.bits/8), nil

	case st.isFloat():
		f, ok := floatOf(v)
		if !ok {
			return nil, valueErrf(st, path, v, "wanted a number")
		}
		if st.kind == ScalarFloat32 {
			if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
				return nil, valueErrf(st, path, v, "out of range")
			}
			return binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(f))), nil
		}
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(f)), nil

	default:
		panic("unknown scalar kind")
	}
}

func (st *ScalarType) decodeValue(d *byteDecoder) (any, error) {
	off := d.Off()
	u, err := d.Fixed(st.bits / 8)
	if err != nil {
		return nil, err
	}
	switch st.kind {
	case ScalarChar:
		return string(rune(byte(u))), nil
	case ScalarBool:
		if u > 1 {
			return nil, dataErrf(d.Orig, off, nil, "invalid bool %d", u)
		}
		return u == 1, nil
	case ScalarInt8:
		return int8(u), nil
	case ScalarInt16:
		return int16(u), nil
	case ScalarInt32:
		return int32(u), nil
	case ScalarInt64:
		return int64(u), nil
	case ScalarUint8:
		return uint8(u), nil
	case ScalarUint16:
		return uint16(u), nil
	case ScalarUint32:
		return uint32(u), nil
	case ScalarUint64:
		return u, nil
	case ScalarFloat32:
		return math.Float32frombits(uint32(u)), nil
	case ScalarFloat64:
		return math.Float64frombits(u), nil
	default:
		panic("unknown scalar kind")
	}
}

func (t *StructType) appendValue(buf []byte, v any, path string) ([]byte, error) {
	items, ok := sequenceOf(v)
	if !ok {
		return nil, valueErrf(t, path, v, "wanted a sequence of %d fields", len(t.fields))
	}
	if items.Len() != len(t.fields) {
		return nil, valueErrf(t, path, v, "got %d fields, wanted %d", items.Len(), len(t.fields))
	}
	var err error
	for i, f := range t.fields {
		fp := path + "." + f.Name
		item := items.Index(i).Interface()
		if item == nil {
			return nil, valueErrf(t, fp, item, "field %s is missing", f.Name)
		}
		buf, err = f.Type.appendValue(buf, item, fp)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (t *StructType) decodeValue(d *byteDecoder) (any, error) {
	out := make([]any, len(t.fields))
	for i, f := range t.fields {
		v, err := f.Type.decodeValue(d)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (t *ArrayType) appendValue(buf []byte, v any, path string) ([]byte, error) {
	return t.appendDim(buf, v, 0, path)
}

func (t *ArrayType) appendDim(buf []byte, v any, dim int, path string) ([]byte, error) {
	n := t.dims[dim]
	items, ok := sequenceOf(v)
	if !ok {
		return nil, valueErrf(t, path, v, "wanted a sequence of %d items", n)
	}
	if items.Len() != n {
		return nil, valueErrf(t, path, v, "got %d items, wanted %d", items.Len(), n)
	}
	var err error
	for i := range n {
		ip := path + "[" + strconv.Itoa(i) + "]"
		item := items.Index(i).Interface()
		if item == nil {
			return nil, valueErrf(t, ip, item, "item is missing")
		}
		if dim+1 < len(t.dims) {
			buf, err = t.appendDim(buf, item, dim+1, ip)
		} else {
			buf, err = t.elem.appendValue(buf, item, ip)
		}
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (t *ArrayType) decodeValue(d *byteDecoder) (any, error) {
	return t.decodeDim(d, 0)
}

func (t *ArrayType) decodeDim(d *byteDecoder, dim int) (any, error) {
	out := make([]any, t.dims[dim])
	for i := range out {
		var v any
		var err error
		if dim+1 < len(t.dims) {
			v, err = t.decodeDim(d, dim+1)
		} else {
			v, err = t.elem.decodeValue(d)
		}
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (t *EnumType) appendValue(buf []byte, v any, path string) ([]byte, error) {
	s, ok := stringOf(v)
	if !ok {
		return nil, valueErrf(t, path, v, "wanted an enumerator name")
	}
	i, ok := t.indices[s]
	if !ok {
		return nil, valueErrf(t, path, v, "unknown enumerator %q", s)
	}
	return appendTag(buf, i, len(t.values)), nil
}

func (t *EnumType) decodeValue(d *byteDecoder) (any, error) {
	i, err := d.Tag(len(t.values))
	if err != nil {
		return nil, err
	}
	return t.values[i], nil
}

func (t *VariantType) appendValue(buf []byte, v any, path string) ([]byte, error) {
	var name string
	var payload any
	switch v := v.(type) {
	case VariantValue:
		name, payload = v.Case, v.Value
	case *VariantValue:
		if v == nil {
			return nil, valueErrf(t, path, v, "nil variant value")
		}
		name, payload = v.Case, v.Value
	default:
		s, ok := stringOf(v)
		if !ok {
			return nil, valueErrf(t, path, v, "wanted a case name or a VariantValue")
		}
		name = s
	}
	i, ok := t.indices[name]
	if !ok {
		return nil, valueErrf(t, path, v, "unknown case %q", name)
	}
	c := t.cases[i]
	if c.Type == nil && payload != nil {
		return nil, valueErrf(t, path, v, "case %s carries no payload", name)
	}
	if c.Type != nil && payload == nil {
		return nil, valueErrf(t, path, v, "case %s needs a %s payload", name, c.Type.String())
	}

	buf = appendTag(buf, i, len(t.cases))
	start := len(buf)
	if c.Type != nil {
		var err error
		buf, err = c.Type.appendValue(buf, payload, path+"."+name)
		if err != nil {
			return nil, err
		}
	}
	if t.payloadSize >= 0 {
		for len(buf) < start+t.payloadSize {
			buf = append(buf, 0)
		}
	}
	return buf, nil
}

func (t *VariantType) decodeValue(d *byteDecoder) (any, error) {
	i, err := d.Tag(len(t.cases))
	if err != nil {
		return nil, err
	}
	c := t.cases[i]
	start := d.Off()
	var payload any
	if c.Type != nil {
		payload, err = c.Type.decodeValue(d)
		if err != nil {
			return nil, err
		}
	}
	if t.payloadSize >= 0 {
		off := d.Off()
		pad, err := d.Raw(t.payloadSize - (off - start))
		if err != nil {
			return nil, err
		}
		for i, b := range pad {
			if b != 0 {
				return nil, dataErrf(d.Orig, off+i, nil, "nonzero padding after %s payload", c.Name)
			}
		}
	}
	if c.Type == nil {
		return c.Name, nil
	}
	return VariantValue{Case: c.Name, Value: payload}, nil
}

func (t *ImportedType) appendValue(buf []byte, v any, path string) ([]byte, error) {
	b, err := bytesOf(t, v, path)
	if err != nil {
		return nil, err
	}
	if len(b) != t.size {
		return nil, valueErrf(t, path, v, "got %d bytes, wanted %d", len(b), t.size)
	}
	return append(buf, b...), nil
}

func (t *ImportedType) decodeValue(d *byteDecoder) (any, error) {
	b, err := d.Raw(t.size)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (t *VSizeImportedType) appendValue(buf []byte, v any, path string) ([]byte, error) {
	if b, ok := rawBytesOf(v); ok {
		return appendVarbytes(buf, b), nil
	}
	if !t.HasCallbacks() {
		return nil, valueErrf(t, path, v, "no size and serialize callbacks, wanted raw bytes")
	}
	var n int
	err := guard(t, path, v, "Size", func() (err error) {
		n, err = t.sizer.Size(v)
		return err
	})
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, valueErrf(t, path, v, "Size returned %d", n)
	}
	data := make([]byte, n)
	err = guard(t, path, v, "Serialize", func() error {
		return t.serializer.Serialize(v, data)
	})
	if err != nil {
		return nil, err
	}
	return appendVarbytes(buf, data), nil
}

func (t *VSizeImportedType) decodeValue(d *byteDecoder) (any, error) {
	b, err := d.VarBytes()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}
