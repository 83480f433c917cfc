package sdstore

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

type DumpFlags uint64

const (
	DumpTypes = DumpFlags(1 << iota)
	DumpElements
	DumpValues

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the file as text. The output depends only on the stored
// content, so dumps of equivalent files compare equal.
func (f *File) Dump(flags DumpFlags) string {
	var buf strings.Builder
	if flags.Contains(DumpTypes) {
		buf.WriteString("types:\n")
		for _, t := range f.types.order {
			buf.WriteString(indentStep)
			buf.WriteString(t.Name())
			buf.WriteString(" = ")
			buf.WriteString(Spelling(t))
			buf.WriteByte('\n')
		}
	}
	if flags.Contains(DumpElements) {
		buf.WriteString("elements:\n")
		f.walk(func(e *Element, depth int) {
			indent := strings.Repeat(indentStep, depth+1)
			buf.WriteString(indent)
			describeElement(&buf, e)
			fmt.Fprintf(&buf, " (%d samples)\n", e.seq.count)
			if flags.Contains(DumpValues) && e.typ != nil && e.seq.count > 0 {
				buf.WriteString(indent)
				buf.WriteString(indentStep)
				buf.WriteString("= [")
				var i int
				for v := range e.Values() {
					if i > 0 {
						buf.WriteString(", ")
					}
					formatValue(&buf, e.typ, v)
					i++
				}
				buf.WriteString("]\n")
			}
		})
	}
	return buf.String()
}

// FormatValue renders a decoded sample of type t the way Dump does.
func FormatValue(t Type, v any) string {
	var buf strings.Builder
	formatValue(&buf, t, v)
	return buf.String()
}

func formatValue(buf *strings.Builder, t Type, v any) {
	if v == nil {
		buf.WriteString("none")
		return
	}
	switch t := t.(type) {
	case *ScalarType:
		switch v := v.(type) {
		case string:
			buf.WriteString(strconv.Quote(v))
		case float32:
			buf.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
		case float64:
			buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		default:
			fmt.Fprint(buf, v)
		}
	case *StructType:
		items, _ := v.([]any)
		buf.WriteByte('{')
		for i, f := range t.fields {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(f.Name)
			buf.WriteString(": ")
			if i < len(items) {
				formatValue(buf, f.Type, items[i])
			}
		}
		buf.WriteByte('}')
	case *ArrayType:
		formatDim(buf, t, v, 0)
	case *EnumType:
		fmt.Fprint(buf, v)
	case *VariantType:
		switch v := v.(type) {
		case VariantValue:
			c, _ := t.CaseNamed(v.Case)
			buf.WriteString(v.Case)
			buf.WriteByte('(')
			if c.Type != nil {
				formatValue(buf, c.Type, v.Value)
			}
			buf.WriteByte(')')
		default:
			fmt.Fprint(buf, v)
		}
	default:
		if b, ok := v.([]byte); ok {
			buf.WriteString("0x")
			buf.WriteString(hex.EncodeToString(b))
		} else {
			fmt.Fprint(buf, v)
		}
	}
}

func formatDim(buf *strings.Builder, t *ArrayType, v any, dim int) {
	items, _ := v.([]any)
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteString(", ")
		}
		if dim+1 < len(t.dims) {
			formatDim(buf, t, item, dim+1)
		} else {
			formatValue(buf, t.elem, item)
		}
	}
	buf.WriteByte(']')
}
