package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// stringPresent is the marker byte that precedes a non-empty string.
const stringPresent = 0x0B

// Reader decodes little-endian primitives from a single frame payload.
// The first failure is sticky: later reads return zero values and Err
// reports the original cause.
type Reader struct {
	r   *bytes.Reader
	err error
}

// NewReader returns a Reader over payload.
func NewReader(payload []byte) *Reader {
	return &Reader{r: bytes.NewReader(payload)}
}

// Err returns the first error encountered, wrapped around ErrTruncated for
// short payloads.
func (r *Reader) Err() error {
	return r.err
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return r.r.Len()
}

func (r *Reader) read(v any) {
	if r.err != nil {
		return
	}
	if err := binary.Read(r.r, binary.LittleEndian, v); err != nil {
		r.err = fmt.Errorf("%w: %v", ErrTruncated, err)
	}
}

func (r *Reader) Uint8() uint8 {
	var v uint8
	r.read(&v)
	return v
}

func (r *Reader) Int8() int8 {
	var v int8
	r.read(&v)
	return v
}

func (r *Reader) Uint16() uint16 {
	var v uint16
	r.read(&v)
	return v
}

func (r *Reader) Int16() int16 {
	var v int16
	r.read(&v)
	return v
}

func (r *Reader) Uint32() uint32 {
	var v uint32
	r.read(&v)
	return v
}

func (r *Reader) Int32() int32 {
	var v int32
	r.read(&v)
	return v
}

func (r *Reader) Uint64() uint64 {
	var v uint64
	r.read(&v)
	return v
}

func (r *Reader) Int64() int64 {
	var v int64
	r.read(&v)
	return v
}

func (r *Reader) Float32() float32 {
	var v float32
	r.read(&v)
	return v
}

// ULEB128 reads an unsigned little-endian base-128 integer.
func (r *Reader) ULEB128() uint64 {
	var v uint64
	var shift uint
	for r.err == nil {
		b, err := r.r.ReadByte()
		if err != nil {
			r.err = fmt.Errorf("%w: uleb128: %v", ErrTruncated, err)
			return 0
		}
		if shift >= 64 {
			r.err = fmt.Errorf("packet: uleb128 overflows 64 bits")
			return 0
		}
		v |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return v
		}
		shift += 7
	}
	return 0
}

// Str reads a marker byte and, when it is the present marker, a
// ULEB128 length followed by that many UTF-8 bytes. Any other marker
// yields the empty string.
func (r *Reader) Str() string {
	if r.Uint8() != stringPresent || r.err != nil {
		return ""
	}
	n := r.ULEB128()
	if r.err != nil {
		return ""
	}
	if n > uint64(r.r.Len()) {
		r.err = fmt.Errorf("%w: string of %d bytes with %d remaining", ErrTruncated, n, r.r.Len())
		return ""
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.err = fmt.Errorf("%w: %v", ErrTruncated, err)
		return ""
	}
	return string(buf)
}

// Int32List reads an i16 count followed by that many 32-bit elements.
func (r *Reader) Int32List() []int32 {
	n := r.Int16()
	if r.err != nil || n <= 0 {
		return nil
	}
	if int(n)*4 > r.r.Len() {
		r.err = fmt.Errorf("%w: list of %d elements with %d bytes remaining", ErrTruncated, n, r.r.Len())
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(r.Uint32())
	}
	return out
}
