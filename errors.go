package sdstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTypeConflict        = errors.New("type conflict")
	ErrInvalidType         = errors.New("invalid type definition")
	ErrDuplicateName       = errors.New("duplicate name")
	ErrValueDomain         = errors.New("value outside type domain")
	ErrInvalidRepeatFactor = errors.New("invalid repeat factor")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrReadOnly            = errors.New("file is read-only")
	ErrNotFound            = errors.New("not found")
	ErrExists              = errors.New("already exists")
	ErrFormat              = errors.New("invalid SD file format")
	ErrClosed              = errors.New("file is closed")
)

// DataError reports undecodable container bytes. It matches ErrFormat.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Is(target error) bool {
	return target == ErrFormat
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: at %d in (%d) %x", e.Msg, e.Err, e.Off, n, e.Data)
		} else {
			return fmt.Sprintf("%s: at %d in (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: at %d in (%d) %x...%x", e.Msg, e.Err, e.Off, n, p, s)
		} else {
			return fmt.Sprintf("%s: at %d in (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}

// ElementError describes a failed operation on an element or on a file.
type ElementError struct {
	Path string
	Msg  string
	Err  error
}

func elemErrf(e *Element, err error, format string, args ...any) error {
	var path string
	if e != nil {
		path = e.Path()
	}
	return &ElementError{path, fmt.Sprintf(format, args...), err}
}

func (e *ElementError) Unwrap() error {
	return e.Err
}

func (e *ElementError) Error() string {
	var buf strings.Builder
	if e.Path != "" {
		buf.WriteString(e.Path)
	} else {
		buf.WriteString("sdfile")
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// ValueError reports a value rejected by the validator. Path locates the
// offending part of a composite value, e.g. ".pos[2]". It matches
// ErrValueDomain.
type ValueError struct {
	Type  Type
	Path  string
	Value any
	Msg   string
	Err   error
}

func valueErrf(typ Type, path string, value any, format string, args ...any) error {
	return &ValueError{Type: typ, Path: path, Value: value, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValueError) Unwrap() error {
	return e.Err
}

func (e *ValueError) Is(target error) bool {
	return target == ErrValueDomain
}

func (e *ValueError) Error() string {
	var buf strings.Builder
	buf.WriteString("invalid ")
	if e.Type != nil {
		buf.WriteString(e.Type.String())
	} else {
		buf.WriteString("untyped")
	}
	buf.WriteString(" value")
	if e.Path != "" {
		buf.WriteString(" at ")
		buf.WriteString(e.Path)
	}
	fmt.Fprintf(&buf, " (%T %v)", e.Value, e.Value)
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

func typeErrf(sentinel error, name string, format string, args ...any) error {
	if name == "" {
		return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: %s: %s", sentinel, name, fmt.Sprintf(format, args...))
}
