package sdstore

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
)

// Kind classifies what an element records.
type Kind uint8

const (
	KindNone Kind = iota
	KindProbe
	KindWire
	KindSignal
	KindBranch
	KindOperator
	KindGroupItem

	maxKind = KindGroupItem
)

var kindNames = [...]string{"none", "probe", "wire", "signal", "branch", "operator", "group_item"}

func (k Kind) String() string {
	if k > maxKind {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

func (k Kind) valid() bool {
	return k <= maxKind
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown element kind %q", ErrInvalidArgument, s)
}

// Element is a named, typed node of the element tree of a File. Elements
// with a nil type only group their children.
type Element struct {
	file     *File
	parent   *Element
	id       uint64
	name     string
	typ      Type
	kind     Kind
	group    string
	children []*Element
	seq      sequence
	detached bool
}

func (e *Element) Name() string         { return e.name }
func (e *Element) Type() Type           { return e.typ }
func (e *Element) Kind() Kind           { return e.kind }
func (e *Element) GroupExpr() string    { return e.group }
func (e *Element) File() *File          { return e.file }
func (e *Element) Children() []*Element { return slices.Clone(e.children) }

// Parent returns the parent element, or nil for top-level elements.
func (e *Element) Parent() *Element {
	return e.parent
}

// Path joins the names from the top-level ancestor down to e with "/".
func (e *Element) Path() string {
	if e.parent == nil {
		return e.name
	}
	return e.parent.Path() + "/" + e.name
}

func (e *Element) String() string {
	return e.Path()
}

// FindChild returns the child called name, or nil.
func (e *Element) FindChild(name string) *Element {
	return findElement(e.children, name)
}

func (e *Element) AddChild(name string, typ Type, kind Kind) (*Element, error) {
	if err := e.checkWritable(); err != nil {
		return nil, err
	}
	return e.file.addElement(e, &e.children, name, typ, kind)
}

// RemoveChild detaches c and its whole subtree from e.
func (e *Element) RemoveChild(c *Element) error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	return e.file.removeElement(e, &e.children, c)
}

func (e *Element) SetName(name string) error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	if name == e.name {
		return nil
	}
	if name == "" {
		return elemErrf(e, ErrInvalidArgument, "empty element name")
	}
	siblings := e.file.elements
	if e.parent != nil {
		siblings = e.parent.children
	}
	if findElement(siblings, name) != nil {
		return elemErrf(e, ErrDuplicateName, "cannot rename to %q", name)
	}
	e.name = name
	e.file.structureChanged()
	return nil
}

// SetType changes the element type and discards the recorded samples.
func (e *Element) SetType(typ Type) error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	if sameRef(typ, e.typ) {
		return nil
	}
	if err := e.file.types.adopt(typ); err != nil {
		return elemErrf(e, err, "set type")
	}
	e.typ = typ
	e.seq.clear()
	e.seq.dirty = true
	e.file.structureChanged()
	return nil
}

func (e *Element) SetKind(kind Kind) error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	if !kind.valid() {
		return elemErrf(e, ErrInvalidArgument, "invalid kind %d", kind)
	}
	if kind != e.kind {
		e.kind = kind
		e.file.structureChanged()
	}
	return nil
}

// SetGroupExpr changes the group expression and discards the recorded
// samples.
func (e *Element) SetGroupExpr(expr string) error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	if expr == e.group {
		return nil
	}
	e.group = expr
	e.seq.clear()
	e.seq.dirty = true
	e.file.structureChanged()
	return nil
}

// AppendValue validates v and records it as the next sample. A nil v
// records an absent sample.
func (e *Element) AppendValue(v any) error {
	if err := e.checkAppendable(); err != nil {
		return err
	}
	if err := e.seq.appendOne(e.typ, v); err != nil {
		return elemErrf(e, err, "append")
	}
	return nil
}

// AppendValues records values repeat times in a row. Either every sample is
// recorded or, on error, none is.
func (e *Element) AppendValues(values []any, repeat int) error {
	if err := e.checkAppendable(); err != nil {
		return err
	}
	if repeat < 1 || repeat > maxRunRepeat {
		return elemErrf(e, ErrInvalidRepeatFactor, "repeat %d", repeat)
	}
	b := runBuilder{typ: e.typ}
	for i, v := range values {
		if err := b.add(v); err != nil {
			return elemErrf(e, err, "sample %d", i)
		}
	}
	b.repeat(repeat)
	e.seq.push(b.runs)
	return nil
}

// AppendNones records n absent samples.
func (e *Element) AppendNones(n int) error {
	if err := e.checkAppendable(); err != nil {
		return err
	}
	if n < 0 {
		return elemErrf(e, ErrInvalidArgument, "negative count %d", n)
	}
	b := runBuilder{typ: e.typ}
	if err := b.addNones(n); err != nil {
		return elemErrf(e, err, "append nones")
	}
	e.seq.push(b.runs)
	return nil
}

// ClearValues discards all samples. The element and its type stay.
func (e *Element) ClearValues() error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	e.seq.clear()
	return nil
}

// Values iterates over the recorded samples in append order; absent samples
// are yielded as nil. Each iteration sees the samples and type current at
// its start. Nothing is yielded once the file is closed or the element is
// removed.
func (e *Element) Values() iter.Seq[any] {
	return func(yield func(any) bool) {
		if e.file.closed || e.detached || e.typ == nil {
			return
		}
		e.seq.all(e.typ)(yield)
	}
}

func (e *Element) ValueCount() int {
	return e.seq.count
}

// ValueSlice collects all samples.
func (e *Element) ValueSlice() ([]any, error) {
	if e.file.closed {
		return nil, elemErrf(e, ErrClosed, "read values")
	}
	if e.detached {
		return nil, elemErrf(e, ErrNotFound, "read values of removed element")
	}
	out := make([]any, 0, e.seq.count)
	for v := range e.Values() {
		out = append(out, v)
	}
	return out, nil
}

func (e *Element) checkWritable() error {
	if err := e.file.checkWritable(); err != nil {
		return elemErrf(e, err, "")
	}
	if e.detached {
		return elemErrf(e, ErrNotFound, "element has been removed")
	}
	return nil
}

func (e *Element) checkAppendable() error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	if e.typ == nil {
		return elemErrf(e, &ValueError{Msg: "element has no type"}, "append")
	}
	return nil
}

func (e *Element) walk(f func(e *Element, depth int), depth int) {
	f(e, depth)
	for _, c := range e.children {
		c.walk(f, depth+1)
	}
}

func findElement(list []*Element, name string) *Element {
	for _, e := range list {
		if e.name == name {
			return e
		}
	}
	return nil
}

func (f *File) addElement(parent *Element, list *[]*Element, name string, typ Type, kind Kind) (*Element, error) {
	if name == "" {
		return nil, elemErrf(parent, ErrInvalidArgument, "empty element name")
	}
	if !kind.valid() {
		return nil, elemErrf(parent, ErrInvalidArgument, "invalid kind %d for %q", kind, name)
	}
	if findElement(*list, name) != nil {
		return nil, elemErrf(parent, ErrDuplicateName, "element %q already exists", name)
	}
	if typ != nil {
		if err := f.types.adopt(typ); err != nil {
			return nil, elemErrf(parent, err, "add %q", name)
		}
	}
	f.nextID++
	e := &Element{
		file:   f,
		parent: parent,
		id:     f.nextID,
		name:   name,
		typ:    typ,
		kind:   kind,
	}
	e.seq.dirty = true
	*list = append(*list, e)
	f.structureChanged()
	return e, nil
}

func (f *File) removeElement(parent *Element, list *[]*Element, c *Element) error {
	i := slices.Index(*list, c)
	if c == nil || i < 0 {
		var name string
		if c != nil {
			name = c.name
		}
		return elemErrf(parent, ErrNotFound, "no child element %q", name)
	}
	*list = slices.Delete(*list, i, i+1)
	c.walk(func(e *Element, _ int) {
		e.detached = true
		f.removed = append(f.removed, e.id)
	}, 0)
	f.structureChanged()
	return nil
}

func describeElement(buf *strings.Builder, e *Element) {
	buf.WriteString(e.name)
	buf.WriteString(": ")
	if e.typ == nil {
		buf.WriteString("-")
	} else {
		buf.WriteString(e.typ.String())
	}
	buf.WriteString(" kind=")
	buf.WriteString(e.kind.String())
	if e.group != "" {
		buf.WriteString(" group=")
		buf.WriteString(strconv.Quote(e.group))
	}
}
