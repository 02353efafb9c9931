package varint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrOverflow is returned by Read for values wider than 64 bits
var ErrOverflow = errors.New("varint: overflows a 64-bit integer")

// MaxLen is the longest encoding of a uint64 (ceil(64/7) bytes)
const MaxLen = 10

// Length returns the number of bytes EncodeAt will write for v
// Uses 7 value bits per byte with the high bit as continuation flag
func Length(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// EncodeAt writes v into buf starting at off and returns the bytes written
// Callers size buf with Length beforehand, so running out of room is a bug
// and panics instead of returning an error.
func EncodeAt(v uint64, buf []byte, off int) int {
	n := Length(v)
	if off < 0 || off+n > len(buf) {
		panic(fmt.Sprintf("varint: buffer too small: need %d bytes at offset %d, have %d", n, off, len(buf)))
	}
	i := off
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return n
}

// Append appends the encoding of v to buf
func Append(buf []byte, v uint64) []byte {
	return binary.AppendUvarint(buf, v)
}

// Decode reads a varint from the start of buf
// Returns the value and the number of bytes consumed.
// n == 0 means buf ended mid-value, n < 0 means the value overflows 64 bits.
func Decode(buf []byte) (v uint64, n int) {
	return binary.Uvarint(buf)
}

// Read reads one varint from r
// It returns io.EOF only if no byte was read; a value cut short by the end
// of r gives io.ErrUnexpectedEOF. Errors from r other than io.EOF are
// returned unchanged.
func Read(r io.ByteReader) (uint64, error) {
	br := byteReader{r: r}
	v, err := binary.ReadUvarint(&br)
	if err != nil && br.err == nil {
		return 0, ErrOverflow
	}
	return v, err
}

// byteReader remembers the last error of the wrapped reader
type byteReader struct {
	r   io.ByteReader
	err error
}

func (b *byteReader) ReadByte() (byte, error) {
	c, err := b.r.ReadByte()
	if err != nil {
		b.err = err
	}
	return c, err
}
