package packet

import (
	"bytes"
	"encoding/binary"
)

// HeaderSize is the byte length of a frame header: u16 id, one pad byte
// and a u32 payload length.
const HeaderSize = 7

// Builder accumulates a little-endian payload. Writes are chainable.
type Builder struct {
	buf bytes.Buffer
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() {
	b.buf.Reset()
}

func (b *Builder) write(v any) *Builder {
	// bytes.Buffer never fails a write.
	_ = binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

func (b *Builder) Uint8(v uint8) *Builder   { b.buf.WriteByte(v); return b }
func (b *Builder) Int8(v int8) *Builder     { b.buf.WriteByte(byte(v)); return b }
func (b *Builder) Uint16(v uint16) *Builder { return b.write(v) }
func (b *Builder) Int16(v int16) *Builder   { return b.write(v) }
func (b *Builder) Uint32(v uint32) *Builder { return b.write(v) }
func (b *Builder) Int32(v int32) *Builder   { return b.write(v) }
func (b *Builder) Uint64(v uint64) *Builder { return b.write(v) }
func (b *Builder) Int64(v int64) *Builder   { return b.write(v) }
func (b *Builder) Float32(v float32) *Builder {
	return b.write(v)
}

// Bool writes v as a single byte.
func (b *Builder) Bool(v bool) *Builder {
	if v {
		return b.Uint8(1)
	}
	return b.Uint8(0)
}

// ULEB128 writes v as an unsigned little-endian base-128 integer.
// Zero encodes as a single zero byte.
func (b *Builder) ULEB128(v uint64) *Builder {
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b.buf.WriteByte(c)
		if v == 0 {
			return b
		}
	}
}

// Str writes s using the present marker and a ULEB128 length. The empty
// string is written as a lone absent marker.
func (b *Builder) Str(s string) *Builder {
	if s == "" {
		return b.Uint8(0)
	}
	b.buf.WriteByte(stringPresent)
	b.ULEB128(uint64(len(s)))
	b.buf.WriteString(s)
	return b
}

// Int32List writes an i16 count followed by each element.
func (b *Builder) Int32List(v []int32) *Builder {
	b.Int16(int16(len(v)))
	for _, e := range v {
		b.Int32(e)
	}
	return b
}

// Raw appends data unchanged.
func (b *Builder) Raw(data []byte) *Builder {
	b.buf.Write(data)
	return b
}

// Bytes returns the payload accumulated so far.
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

// Frame wraps the accumulated payload in a frame header for id.
func (b *Builder) Frame(id uint16) []byte {
	return frame(id, b.buf.Bytes())
}

func frame(id uint16, payload []byte) []byte {
	out := make([]byte, HeaderSize, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], id)
	binary.LittleEndian.PutUint32(out[3:7], uint32(len(payload)))
	return append(out, payload...)
}
