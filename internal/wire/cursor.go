// Package wire provides bounds-checked field access over captured bytes.
package wire

import "encoding/binary"

// Cursor reads fixed-size fields from an immutable byte slice. Every
// accessor reports whether the field fit inside the buffer instead of
// panicking, so dissectors can degrade on truncated input.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor returns a cursor positioned at the start of b.
func NewCursor(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// Len returns the total buffer length.
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	if c.pos >= len(c.buf) {
		return 0
	}
	return len(c.buf) - c.pos
}

// Has reports whether n bytes are available at absolute offset off.
func (c *Cursor) Has(off, n int) bool {
	return off >= 0 && n >= 0 && off <= len(c.buf) && n <= len(c.buf)-off
}

// Seek moves to an absolute offset. It fails when off is outside the buffer.
func (c *Cursor) Seek(off int) bool {
	if off < 0 || off > len(c.buf) {
		return false
	}
	c.pos = off
	return true
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) bool {
	return c.Seek(c.pos + n)
}

// Slice returns n bytes at absolute offset off without copying.
func (c *Cursor) Slice(off, n int) ([]byte, bool) {
	if !c.Has(off, n) {
		return nil, false
	}
	return c.buf[off : off+n], true
}

// Tail returns everything from absolute offset off to the end.
func (c *Cursor) Tail(off int) []byte {
	if off < 0 || off >= len(c.buf) {
		return nil
	}
	return c.buf[off:]
}

// Uint8 reads one byte at off.
func (c *Cursor) Uint8(off int) (uint8, bool) {
	if !c.Has(off, 1) {
		return 0, false
	}
	return c.buf[off], true
}

// Uint16BE reads a big-endian uint16 at off.
func (c *Cursor) Uint16BE(off int) (uint16, bool) {
	b, ok := c.Slice(off, 2)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint16(b), true
}

// Uint16LE reads a little-endian uint16 at off.
func (c *Cursor) Uint16LE(off int) (uint16, bool) {
	b, ok := c.Slice(off, 2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

// Uint32BE reads a big-endian uint32 at off.
func (c *Cursor) Uint32BE(off int) (uint32, bool) {
	b, ok := c.Slice(off, 4)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}

// Uint32LE reads a little-endian uint32 at off.
func (c *Cursor) Uint32LE(off int) (uint32, bool) {
	b, ok := c.Slice(off, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// Uint64LE reads a little-endian uint64 at off.
func (c *Cursor) Uint64LE(off int) (uint64, bool) {
	b, ok := c.Slice(off, 8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// Uint16 reads a uint16 at off in the given byte order.
func (c *Cursor) Uint16(order binary.ByteOrder, off int) (uint16, bool) {
	b, ok := c.Slice(off, 2)
	if !ok {
		return 0, false
	}
	return order.Uint16(b), true
}

// Uint32 reads a uint32 at off in the given byte order.
func (c *Cursor) Uint32(order binary.ByteOrder, off int) (uint32, bool) {
	b, ok := c.Slice(off, 4)
	if !ok {
		return 0, false
	}
	return order.Uint32(b), true
}

// ReadUint8 reads one byte at the cursor position and advances.
func (c *Cursor) ReadUint8() (uint8, bool) {
	v, ok := c.Uint8(c.pos)
	if ok {
		c.pos++
	}
	return v, ok
}

// ReadUint16BE reads a big-endian uint16 at the cursor position and advances.
func (c *Cursor) ReadUint16BE() (uint16, bool) {
	v, ok := c.Uint16BE(c.pos)
	if ok {
		c.pos += 2
	}
	return v, ok
}

// ReadBytes returns the next n bytes and advances.
func (c *Cursor) ReadBytes(n int) ([]byte, bool) {
	b, ok := c.Slice(c.pos, n)
	if ok {
		c.pos += n
	}
	return b, ok
}
