package sdstore

import (
	"encoding/binary"
	"io"
	"math"
)

type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = append(bb.Buf, b...)
	return len(b), nil
}

func (bb *bytesBuilder) WriteByte(v byte) error {
	bb.Buf = append(bb.Buf, v)
	return nil
}

func (bb *bytesBuilder) AppendUvarint(v uint64) {
	bb.Buf = binary.AppendUvarint(bb.Buf, v)
}

func (bb *bytesBuilder) AppendUint64(v uint64) {
	bb.Buf = binary.LittleEndian.AppendUint64(bb.Buf, v)
}

func appendVarbytes(buf []byte, v []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(v)))
	return append(buf, v...)
}

// appendTag writes index i of n alternatives using tagSize(n) bytes.
func appendTag(buf []byte, i, n int) []byte {
	switch tagSize(n) {
	case 1:
		return append(buf, byte(i))
	case 2:
		return binary.LittleEndian.AppendUint16(buf, uint16(i))
	default:
		return binary.LittleEndian.AppendUint32(buf, uint32(i))
	}
}

type byteDecoder struct {
	Orig []byte
	Buf  []byte
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{buf, buf}
}

func (d *byteDecoder) Off() int {
	return len(d.Orig) - len(d.Buf)
}

func (d *byteDecoder) Done() bool {
	return len(d.Buf) == 0
}

func (d *byteDecoder) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.Buf)
	if n <= 0 {
		return 0, dataErrf(d.Orig, d.Off(), nil, "invalid uvarint")
	}
	d.Buf = d.Buf[n:]
	return v, nil
}

func (d *byteDecoder) Uvarinti() (int, error) {
	v, err := d.Uvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt {
		return 0, dataErrf(d.Orig, d.Off(), nil, "value does not fit into int: %d", v)
	}
	return int(v), nil
}

func (d *byteDecoder) Raw(n int) ([]byte, error) {
	if n < 0 || len(d.Buf) < n {
		return nil, dataErrf(d.Orig, d.Off(), nil, "not enough data: %d bytes remaining, %d wanted", len(d.Buf), n)
	}
	v := d.Buf[:n]
	d.Buf = d.Buf[n:]
	return v, nil
}

func (d *byteDecoder) VarBytes() ([]byte, error) {
	n, err := d.Uvarinti()
	if err != nil {
		return nil, err
	}
	return d.Raw(n)
}

func (d *byteDecoder) Fixed(n int) (uint64, error) {
	b, err := d.Raw(n)
	if err != nil {
		return 0, err
	}
	switch n {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	default:
		panic("invalid fixed width")
	}
}

// Tag reads an index written by appendTag and checks it against n.
func (d *byteDecoder) Tag(n int) (int, error) {
	off := d.Off()
	v, err := d.Fixed(tagSize(n))
	if err != nil {
		return 0, err
	}
	if v >= uint64(n) {
		return 0, dataErrf(d.Orig, off, nil, "index %d out of range for %d alternatives", v, n)
	}
	return int(v), nil
}
