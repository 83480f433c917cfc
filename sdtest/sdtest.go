// Package sdtest has helpers for testing code that reads and writes SD
// files.
package sdtest

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Path returns a not yet existing file path inside a per-test temporary
// directory.
func Path(t testing.TB, name string) string {
	return filepath.Join(t.TempDir(), name)
}

// Logger returns a debug-level logger that writes into the test log.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(testLog{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testLog struct{ t testing.TB }

func (l testLog) Write(buf []byte) (int, error) {
	l.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}

// Expand builds bytes from whitespace-separated tokens, so that expected
// samples and run blocks can be spelled out in tests:
//
//   - hex digits, with "_" between bytes: "01ff", "1_2"
//   - #N is N as a uvarint
//   - 'text is the literal text
//   - u8=N ... u64=N, i8=N ... i64=N, f32=X, f64=X are little-endian scalars
//   - tok*N repeats tok N times
//   - tok/comment ignores the comment
//
// Expand panics on malformed input.
func Expand(patterns ...string) []byte {
	var out []byte
	for _, pattern := range patterns {
		for _, tok := range strings.Fields(pattern) {
			tok, _, _ = strings.Cut(tok, "/")
			if tok == "" {
				continue
			}
			n := 1
			if body, count, ok := strings.Cut(tok, "*"); ok {
				var err error
				if n, err = strconv.Atoi(count); err != nil || n < 0 {
					panic(fmt.Sprintf("sdtest: bad repeat count in %q", tok))
				}
				tok = body
			}
			data, err := expandToken(tok)
			if err != nil {
				panic(fmt.Sprintf("sdtest: %q: %v", tok, err))
			}
			out = append(out, bytes.Repeat(data, n)...)
		}
	}
	return out
}

var scalarWidths = map[string]int{
	"u8": 1, "u16": 2, "u32": 4, "u64": 8,
	"i8": 1, "i16": 2, "i32": 4, "i64": 8,
	"f32": 4, "f64": 8,
}

func expandToken(tok string) ([]byte, error) {
	if s, ok := strings.CutPrefix(tok, "'"); ok {
		return []byte(s), nil
	}
	if s, ok := strings.CutPrefix(tok, "#"); ok {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return binary.AppendUvarint(nil, v), nil
	}
	if kind, num, ok := strings.Cut(tok, "="); ok {
		width, known := scalarWidths[kind]
		if !known {
			return nil, fmt.Errorf("unknown scalar %q", kind)
		}
		var bits uint64
		var err error
		switch kind[0] {
		case 'u':
			bits, err = strconv.ParseUint(num, 0, width*8)
		case 'i':
			var v int64
			v, err = strconv.ParseInt(num, 0, width*8)
			bits = uint64(v)
		case 'f':
			var v float64
			v, err = strconv.ParseFloat(num, width*8)
			if width == 4 {
				bits = uint64(math.Float32bits(float32(v)))
			} else {
				bits = math.Float64bits(v)
			}
		}
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint64(nil, bits)[:width], nil
	}

	var out []byte
	for _, group := range strings.Split(tok, "_") {
		if len(group)%2 == 1 {
			group = "0" + group
		}
		b, err := hex.DecodeString(group)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

const dumpWidth = 8

// HexDump renders b dumpWidth bytes per line, marking the byte at
// highlightOff with ">".
func HexDump(b []byte, highlightOff int) string {
	if len(b) == 0 {
		return "00000000\n"
	}
	var buf strings.Builder
	for off := 0; off < len(b); off += dumpWidth {
		line := b[off:min(off+dumpWidth, len(b))]
		fmt.Fprintf(&buf, "%08x ", off)
		for i := range dumpWidth {
			switch {
			case i >= len(line):
				buf.WriteString("   ")
			case off+i == highlightOff:
				fmt.Fprintf(&buf, ">%02x", line[i])
			default:
				fmt.Fprintf(&buf, " %02x", line[i])
			}
		}
		buf.WriteString("  |")
		for _, c := range line {
			if c < ' ' || c > '~' {
				c = '.'
			}
			buf.WriteByte(c)
		}
		buf.WriteString("|\n")
	}
	return buf.String()
}

// BytesEq fails the test with hex dumps of both sides when actual differs
// from expected.
func BytesEq(t testing.TB, actual, expected []byte) bool {
	if bytes.Equal(actual, expected) {
		return true
	}
	off := min(len(actual), len(expected))
	for i := range off {
		if actual[i] != expected[i] {
			off = i
			break
		}
	}
	t.Helper()
	t.Errorf("** got:\n%v\nwanted:\n%v\nfirst difference at 0x%x (%d)", HexDump(actual, off), HexDump(expected, off), off, off)
	return false
}
