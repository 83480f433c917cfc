package sdstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// The container is a bbolt database:
//
//   - sd/header = magic:64 version:16 flags:16 _:32 nextID:64 checksum:64
//   - sd/types  = msgpack []typeRecord, nested types before their users
//   - sd/tree   = msgpack []elementRecord, parents before their children
//   - seq/<id:64 BE>/meta      = msgpack seqMeta
//   - seq/<id:64 BE>/<i:32 BE> = run block i, see encodeRun
const (
	magic           = 0x0045524f54534453 // "SDSTORE\x00" as little-endian uint64
	version1 uint16 = 1

	headerSize = 4 * 8

	// firstTableRef is the reference of the first type table entry; smaller
	// non-zero references are scalar kinds.
	firstTableRef = 64
)

var (
	bucketSD  = []byte("sd")
	bucketSeq = []byte("seq")
	keyHeader = []byte("header")
	keyTypes  = []byte("types")
	keyTree   = []byte("tree")
	keyMeta   = []byte("meta")
)

type fileHeader struct {
	Magic    uint64
	Version  uint16
	Flags    uint16
	_        uint32
	NextID   uint64
	Checksum uint64
}

func encodeHeader(nextID uint64) []byte {
	h := fileHeader{
		Magic:   magic,
		Version: version1,
		NextID:  nextID,
	}
	buf := make([]byte, headerSize)
	n, err := binary.Encode(buf, binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != len(buf) {
		panic("internal size mismatch")
	}
	binary.LittleEndian.PutUint64(buf[headerSize-8:], xxhash.Sum64(buf[:headerSize-8]))
	return buf
}

func decodeHeader(buf []byte) (*fileHeader, error) {
	if len(buf) != headerSize {
		return nil, dataErrf(buf, 0, nil, "header is %d bytes, wanted %d", len(buf), headerSize)
	}
	var h fileHeader
	_, err := binary.Decode(buf, binary.LittleEndian, &h)
	if err != nil {
		return nil, dataErrf(buf, 0, err, "invalid header")
	}
	if h.Magic != magic {
		return nil, dataErrf(buf, 0, nil, "invalid magic")
	}
	if sum := xxhash.Sum64(buf[:headerSize-8]); sum != h.Checksum {
		return nil, dataErrf(buf, headerSize-8, nil, "header checksum mismatch")
	}
	if h.Version != version1 {
		return nil, dataErrf(buf, 8, nil, "unsupported version %d", h.Version)
	}
	return &h, nil
}

type fieldRecord struct {
	Name string `msgpack:"n"`
	Ref  uint32 `msgpack:"t"`
}

type typeRecord struct {
	Kind   TypeKind      `msgpack:"k"`
	Name   string        `msgpack:"n,omitempty"`
	Fields []fieldRecord `msgpack:"f,omitempty"`
	Elem   uint32        `msgpack:"e,omitempty"`
	Dims   []int         `msgpack:"d,omitempty"`
	Values []string      `msgpack:"v,omitempty"`
	Size   int           `msgpack:"s,omitempty"`
}

type elementRecord struct {
	ID     uint64 `msgpack:"id"`
	Parent uint64 `msgpack:"p"`
	Name   string `msgpack:"n"`
	Type   uint32 `msgpack:"t"`
	Kind   Kind   `msgpack:"k"`
	Group  string `msgpack:"g,omitempty"`
}

type seqMeta struct {
	Count   uint64 `msgpack:"count"`
	Runs    uint32 `msgpack:"runs"`
	TypeSig uint64 `msgpack:"sig"`
}

// typeTable assigns references to the types stored in a container.
type typeTable struct {
	refs    map[Type]uint32
	byName  map[string]uint32
	records []typeRecord
}

func newTypeTable() *typeTable {
	return &typeTable{
		refs:   make(map[Type]uint32),
		byName: make(map[string]uint32),
	}
}

func (tt *typeTable) ref(t Type) uint32 {
	if t == nil {
		return 0
	}
	if st, ok := t.(*ScalarType); ok {
		return uint32(st.kind)
	}
	if r, ok := tt.refs[t]; ok {
		return r
	}
	name := t.Name()
	if r, ok := tt.byName[name]; ok && name != "" {
		return r
	}

	rec := typeRecord{Kind: t.Kind(), Name: name}
	switch t := t.(type) {
	case *StructType:
		for _, f := range t.fields {
			rec.Fields = append(rec.Fields, fieldRecord{f.Name, tt.ref(f.Type)})
		}
	case *ArrayType:
		rec.Elem = tt.ref(t.elem)
		rec.Dims = t.dims
	case *EnumType:
		rec.Values = t.values
	case *VariantType:
		for _, c := range t.cases {
			rec.Fields = append(rec.Fields, fieldRecord{c.Name, tt.ref(c.Type)})
		}
	case *ImportedType:
		rec.Size = t.size
	case *VSizeImportedType:
	default:
		panic(fmt.Errorf("unsupported type %T", t))
	}

	tt.records = append(tt.records, rec)
	r := uint32(firstTableRef + len(tt.records) - 1)
	tt.refs[t] = r
	if name != "" {
		tt.byName[name] = r
	}
	return r
}

// decodeTypes rebuilds the descriptors of a type table, defining the named
// ones in r.
func decodeTypes(r *Registry, recs []typeRecord) ([]Type, error) {
	types := make([]Type, 0, len(recs))
	resolve := func(ref uint32, optional bool) (Type, error) {
		switch {
		case ref == 0 && optional:
			return nil, nil
		case ref == 0:
			return nil, fmt.Errorf("missing type reference")
		case ref < firstTableRef:
			if st := scalarByKind(ScalarKind(ref)); st != nil {
				return st, nil
			}
		case int(ref-firstTableRef) < len(types):
			return types[ref-firstTableRef], nil
		}
		return nil, fmt.Errorf("invalid type reference %d", ref)
	}

	for i, rec := range recs {
		var t Type
		var err error
		switch rec.Kind {
		case TypeStruct:
			fields := make([]Field, len(rec.Fields))
			for j, fr := range rec.Fields {
				fields[j].Name = fr.Name
				if fields[j].Type, err = resolve(fr.Ref, false); err != nil {
					break
				}
			}
			if err == nil {
				t, err = r.DefineStruct(rec.Name, fields...)
			}
		case TypeArray:
			var elem Type
			if elem, err = resolve(rec.Elem, false); err == nil {
				t, err = r.DefineArray(rec.Name, elem, rec.Dims...)
			}
		case TypeEnum:
			t, err = r.DefineEnum(rec.Name, rec.Values...)
		case TypeVariant:
			cases := make([]Case, len(rec.Fields))
			for j, fr := range rec.Fields {
				cases[j].Name = fr.Name
				if cases[j].Type, err = resolve(fr.Ref, true); err != nil {
					break
				}
			}
			if err == nil {
				t, err = r.DefineVariant(rec.Name, cases...)
			}
		case TypeImported:
			t, err = r.DefineImported(rec.Name, rec.Size)
		case TypeVSizeImported:
			t, err = r.DefineVSizeImported(rec.Name, nil, nil)
		default:
			err = fmt.Errorf("unknown type kind %d", rec.Kind)
		}
		if err != nil {
			return nil, dataErrf(nil, 0, err, "type table entry %d", i)
		}
		types = append(types, t)
	}
	return types, nil
}

// typeSig identifies the encoding of samples of t.
func typeSig(t Type) uint64 {
	if t == nil {
		return 0
	}
	return xxhash.Sum64String(signature(t))
}

func idKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

func runKey(i int) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(i))
}

func encodeMsgpack(v any) []byte {
	var bb bytesBuilder
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bb, nil)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T using MsgPack: %w", v, err))
	}
	return bb.Buf
}

func decodeMsgpack(buf []byte, v any) error {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(buf, 0, err, "failed to decode msgpack into %T", v)
	}
	return nil
}

// commit writes the whole state of f in a single transaction.
func (f *File) commit() error {
	err := f.db.Update(f.save)
	if err != nil {
		return err
	}
	f.walk(func(e *Element, _ int) {
		e.seq.dirty = false
	})
	f.removed = nil
	f.changed = false
	f.loadedTypes = len(f.types.order)
	return nil
}

func (f *File) save(tx *bbolt.Tx) error {
	sd, err := tx.CreateBucketIfNotExists(bucketSD)
	if err != nil {
		return err
	}
	seqs, err := tx.CreateBucketIfNotExists(bucketSeq)
	if err != nil {
		return err
	}

	tt := newTypeTable()
	for _, t := range f.types.order {
		tt.ref(t)
	}
	var tree []elementRecord
	f.walk(func(e *Element, _ int) {
		rec := elementRecord{
			ID:    e.id,
			Name:  e.name,
			Type:  tt.ref(e.typ),
			Kind:  e.kind,
			Group: e.group,
		}
		if e.parent != nil {
			rec.Parent = e.parent.id
		}
		tree = append(tree, rec)
	})

	if err := sd.Put(keyHeader, encodeHeader(f.nextID)); err != nil {
		return err
	}
	if err := sd.Put(keyTypes, encodeMsgpack(tt.records)); err != nil {
		return err
	}
	if err := sd.Put(keyTree, encodeMsgpack(tree)); err != nil {
		return err
	}

	for _, id := range f.removed {
		err := seqs.DeleteBucket(idKey(id))
		if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
	}

	var werr error
	f.walk(func(e *Element, _ int) {
		if werr == nil && e.seq.dirty {
			werr = writeSequence(seqs, e)
		}
	})
	return werr
}

func writeSequence(seqs *bbolt.Bucket, e *Element) error {
	key := idKey(e.id)
	if seqs.Bucket(key) != nil {
		if err := seqs.DeleteBucket(key); err != nil {
			return err
		}
	}
	b, err := seqs.CreateBucket(key)
	if err != nil {
		return err
	}
	b.FillPercent = 1.0

	meta := seqMeta{
		Count:   uint64(e.seq.count),
		Runs:    uint32(len(e.seq.runs)),
		TypeSig: typeSig(e.typ),
	}
	if err := b.Put(keyMeta, encodeMsgpack(&meta)); err != nil {
		return err
	}
	for i, r := range e.seq.runs {
		if err := b.Put(runKey(i), encodeRun(r)); err != nil {
			return elemErrf(e, err, "writing run %d", i)
		}
	}
	return nil
}

func (f *File) load(tx *bbolt.Tx) error {
	sd := tx.Bucket(bucketSD)
	if sd == nil {
		return dataErrf(nil, 0, nil, "missing %q bucket", bucketSD)
	}
	h, err := decodeHeader(sd.Get(keyHeader))
	if err != nil {
		return err
	}
	f.nextID = h.NextID
	if h.Flags != 0 {
		f.logger.LogAttrs(context.Background(), slog.LevelWarn, "sdstore: ignoring unknown header flags", slog.String("file", f.path), slog.Int("flags", int(h.Flags)))
	}

	var typeRecs []typeRecord
	if err := decodeMsgpack(sd.Get(keyTypes), &typeRecs); err != nil {
		return err
	}
	types, err := decodeTypes(f.types, typeRecs)
	if err != nil {
		return err
	}

	var tree []elementRecord
	if err := decodeMsgpack(sd.Get(keyTree), &tree); err != nil {
		return err
	}
	byID := make(map[uint64]*Element, len(tree))
	for i, rec := range tree {
		if rec.ID == 0 || rec.ID > f.nextID || byID[rec.ID] != nil {
			return dataErrf(nil, 0, nil, "tree entry %d: invalid element id %d", i, rec.ID)
		}
		if rec.Name == "" || !rec.Kind.valid() {
			return dataErrf(nil, 0, nil, "tree entry %d: invalid element %q of kind %d", i, rec.Name, rec.Kind)
		}
		var typ Type
		switch {
		case rec.Type == 0:
		case rec.Type < firstTableRef:
			typ = scalarByKind(ScalarKind(rec.Type))
		case int(rec.Type-firstTableRef) < len(types):
			typ = types[rec.Type-firstTableRef]
		}
		if rec.Type != 0 && typ == nil {
			return dataErrf(nil, 0, nil, "tree entry %d: invalid type reference %d", i, rec.Type)
		}

		e := &Element{
			file:  f,
			id:    rec.ID,
			name:  rec.Name,
			typ:   typ,
			kind:  rec.Kind,
			group: rec.Group,
		}
		list := &f.elements
		if rec.Parent != 0 {
			e.parent = byID[rec.Parent]
			if e.parent == nil {
				return dataErrf(nil, 0, nil, "tree entry %d: parent %d precedes its child", i, rec.Parent)
			}
			list = &e.parent.children
		}
		if findElement(*list, e.name) != nil {
			return dataErrf(nil, 0, nil, "tree entry %d: duplicate element %q", i, e.Path())
		}
		*list = append(*list, e)
		byID[e.id] = e
	}

	seqs := tx.Bucket(bucketSeq)
	if seqs == nil {
		return dataErrf(nil, 0, nil, "missing %q bucket", bucketSeq)
	}
	for _, rec := range tree {
		if err := loadSequence(seqs, byID[rec.ID]); err != nil {
			return err
		}
	}
	return nil
}

func loadSequence(seqs *bbolt.Bucket, e *Element) error {
	b := seqs.Bucket(idKey(e.id))
	if b == nil {
		return nil
	}
	var meta seqMeta
	if err := decodeMsgpack(b.Get(keyMeta), &meta); err != nil {
		return elemErrf(e, err, "sequence metadata")
	}
	if meta.Runs == 0 {
		return nil
	}
	if e.typ == nil {
		return elemErrf(e, ErrFormat, "untyped element has %d runs", meta.Runs)
	}
	if meta.TypeSig != typeSig(e.typ) {
		return elemErrf(e, ErrFormat, "samples were recorded for a different type than %s", e.typ.String())
	}
	var total uint64
	e.seq.runs = make([]*run, 0, meta.Runs)
	for i := range int(meta.Runs) {
		block := b.Get(runKey(i))
		if block == nil {
			return elemErrf(e, ErrFormat, "missing run %d of %d", i, meta.Runs)
		}
		r, err := decodeRun(e.typ, block)
		if err != nil {
			return elemErrf(e, err, "run %d", i)
		}
		if uint64(r.samples()) > math.MaxInt-total {
			return elemErrf(e, ErrFormat, "run %d overflows the sample count", i)
		}
		e.seq.runs = append(e.seq.runs, r)
		total += uint64(r.samples())
	}
	if total != meta.Count {
		return elemErrf(e, ErrFormat, "runs hold %d samples, metadata says %d", total, meta.Count)
	}
	e.seq.count = int(total)
	return nil
}
