package sdstore

import (
	"encoding/binary"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// maxRunSamples caps the number of distinct samples stored in one run.
const maxRunSamples = 1 << 16

// maxRunRepeat caps the repeat count of a run, keeping count*repeat far from
// overflowing.
const maxRunRepeat = math.MaxInt32

// run holds count encoded samples that repeat back to back repeat times.
// Absent samples are marked in the bitmap and take no data bytes.
type run struct {
	count  int
	repeat int
	absent bitmap
	data   []byte
}

func (r *run) samples() int {
	return r.count * r.repeat
}

func (r *run) clone() *run {
	return &run{
		count:  r.count,
		repeat: r.repeat,
		absent: slices.Clone(r.absent),
		data:   slices.Clone(r.data),
	}
}

// absorb appends the samples of o, a single-repetition run, to r.
func (r *run) absorb(o *run) {
	for i := range o.count {
		if o.absent.get(i) {
			r.absent.set(r.count + i)
		}
	}
	r.data = append(r.data, o.data...)
	r.count += o.count
}

type sequence struct {
	runs  []*run
	count int
	dirty bool
}

func (s *sequence) last() *run {
	if len(s.runs) == 0 {
		return nil
	}
	return s.runs[len(s.runs)-1]
}

func (s *sequence) clear() {
	if s.count == 0 && len(s.runs) == 0 {
		return
	}
	s.runs = nil
	s.count = 0
	s.dirty = true
}

// appendOne encodes v straight into the tail run. Nothing changes on error.
func (s *sequence) appendOne(typ Type, v any) error {
	r := s.last()
	fresh := r == nil || r.repeat != 1 || r.count >= maxRunSamples
	if fresh {
		r = &run{repeat: 1}
	}
	if v == nil {
		if !allowsAbsence(typ) {
			return valueErrf(typ, "", nil, "absent samples are not supported by this type")
		}
		r.absent.set(r.count)
	} else {
		data, err := typ.appendValue(r.data, v, "")
		if err != nil {
			return err
		}
		r.data = data
	}
	r.count++
	if fresh {
		s.runs = append(s.runs, r)
	}
	s.count++
	s.dirty = true
	return nil
}

func (s *sequence) push(runs []*run) {
	for _, r := range runs {
		if r.count == 0 {
			continue
		}
		s.count += r.samples()
		if t := s.last(); t != nil && t.repeat == 1 && r.repeat == 1 && t.count+r.count <= maxRunSamples {
			t.absorb(r)
		} else {
			s.runs = append(s.runs, r)
		}
		s.dirty = true
	}
}

func (s *sequence) all(typ Type) iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, r := range s.runs {
			for range r.repeat {
				d := makeByteDecoder(r.data)
				for i := range r.count {
					if r.absent.get(i) {
						if !yield(nil) {
							return
						}
						continue
					}
					v, err := typ.decodeValue(&d)
					if err != nil {
						panic(fmt.Errorf("sdstore: corrupted sequence data: %w", err))
					}
					if !yield(v) {
						return
					}
				}
			}
		}
	}
}

// runBuilder encodes a batch of samples into fresh runs, so that a failed
// batch leaves the sequence untouched.
type runBuilder struct {
	typ  Type
	runs []*run
}

func (b *runBuilder) tail() *run {
	if n := len(b.runs); n > 0 {
		if r := b.runs[n-1]; r.repeat == 1 && r.count < maxRunSamples {
			return r
		}
	}
	r := &run{repeat: 1}
	b.runs = append(b.runs, r)
	return r
}

func (b *runBuilder) add(v any) error {
	r := b.tail()
	if v == nil {
		if !allowsAbsence(b.typ) {
			return valueErrf(b.typ, "", nil, "absent samples are not supported by this type")
		}
		r.absent.set(r.count)
	} else {
		data, err := b.typ.appendValue(r.data, v, "")
		if err != nil {
			return err
		}
		r.data = data
	}
	r.count++
	return nil
}

func (b *runBuilder) addNones(n int) error {
	if n == 0 {
		return nil
	}
	if !allowsAbsence(b.typ) {
		return valueErrf(b.typ, "", nil, "absent samples are not supported by this type")
	}
	if n == 1 {
		return b.add(nil)
	}
	for n > 0 {
		k := min(n, maxRunRepeat)
		b.runs = append(b.runs, &run{count: 1, repeat: k, absent: bitmap{1}})
		n -= k
	}
	return nil
}

// repeat makes the batch occur k times in total. A batch that fits into a
// single run is kept as one repeated run.
func (b *runBuilder) repeat(k int) {
	if k <= 1 || len(b.runs) == 0 {
		return
	}
	if len(b.runs) == 1 && b.runs[0].repeat == 1 {
		b.runs[0].repeat = k
		return
	}
	orig := b.runs
	for range k - 1 {
		for _, r := range orig {
			b.runs = append(b.runs, r.clone())
		}
	}
}

// encodeRun renders a run block:
// uvarint count | uvarint repeat | uvarint words | words | data | xxhash64.
func encodeRun(r *run) []byte {
	words := r.absent.trimmed()
	bb := bytesBuilder{Buf: make([]byte, 0, 3*binary.MaxVarintLen64+8*len(words)+len(r.data)+8)}
	bb.AppendUvarint(uint64(r.count))
	bb.AppendUvarint(uint64(r.repeat))
	bb.AppendUvarint(uint64(len(words)))
	for _, w := range words {
		bb.AppendUint64(w)
	}
	bb.Write(r.data)
	bb.AppendUint64(xxhash.Sum64(bb.Buf))
	return bb.Buf
}

// decodeRun parses and verifies a run block of samples of type typ. The
// result does not alias block.
func decodeRun(typ Type, block []byte) (*run, error) {
	if len(block) < 8 {
		return nil, dataErrf(block, 0, nil, "run block too short")
	}
	body := block[:len(block)-8]
	d := makeByteDecoder(body)
	sum := makeByteDecoder(block[len(body):])
	want, _ := sum.Fixed(8)
	if got := xxhash.Sum64(body); got != want {
		return nil, dataErrf(block, len(body), nil, "run checksum mismatch: %016x != %016x", got, want)
	}

	count, err := d.Uvarinti()
	if err != nil {
		return nil, err
	}
	if count < 1 || count > maxRunSamples {
		return nil, dataErrf(block, 0, nil, "invalid run sample count %d", count)
	}
	repeat, err := d.Uvarinti()
	if err != nil {
		return nil, err
	}
	if repeat < 1 || repeat > maxRunRepeat {
		return nil, dataErrf(block, 0, nil, "invalid run repeat %d", repeat)
	}
	nwords, err := d.Uvarinti()
	if err != nil {
		return nil, err
	}
	if nwords > (count+63)/64 {
		return nil, dataErrf(block, d.Off(), nil, "absence bitmap of %d words for %d samples", nwords, count)
	}
	r := &run{count: count, repeat: repeat}
	if nwords > 0 {
		r.absent = make(bitmap, nwords)
		for i := range r.absent {
			r.absent[i], err = d.Fixed(8)
			if err != nil {
				return nil, err
			}
		}
		if r.absent.beyond(count) {
			return nil, dataErrf(block, d.Off(), nil, "absence bitmap marks samples past the run end")
		}
	}
	absent := r.absent.count()
	if absent > 0 && !allowsAbsence(typ) {
		return nil, dataErrf(block, d.Off(), nil, "absent samples recorded for %s", typ.String())
	}

	dataOff := d.Off()
	present := count - absent
	size := typ.wireSize()
	if size >= 0 && len(d.Buf) != present*size {
		return nil, dataErrf(block, dataOff, nil, "run data is %d bytes, wanted %d samples of %d bytes", len(d.Buf), present, size)
	}
	if size < 0 || !anyBytesValid(typ) {
		walk := makeByteDecoder(d.Buf)
		for range present {
			if _, err := typ.decodeValue(&walk); err != nil {
				return nil, dataErrf(block, dataOff+walk.Off(), err, "invalid run data")
			}
		}
		if !walk.Done() {
			return nil, dataErrf(block, dataOff+walk.Off(), nil, "%d trailing bytes in run data", len(walk.Buf))
		}
	}
	r.data = slices.Clone(d.Buf)
	return r, nil
}
