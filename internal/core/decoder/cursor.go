package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"

	"firestige.xyz/pktt/internal/core"
)

// Field is one entry of a fixed header Layout. Positive values are
// big-endian unsigned integers of that many bytes; Block(n) is an opaque
// run of n bytes.
type Field int

const (
	U8  Field = 1
	U16 Field = 2
	U32 Field = 4
	U64 Field = 8
)

// Block declares a fixed-size byte block of n bytes.
func Block(n int) Field { return Field(-n) }

func (f Field) size() int {
	if f < 0 {
		return int(-f)
	}
	return int(f)
}

func (f Field) isBlock() bool { return f < 0 }

// Layout declares a fixed header as an ordered list of fields.
type Layout []Field

// Size returns the number of bytes the layout occupies.
func (l Layout) Size() int {
	n := 0
	for _, f := range l {
		n += f.size()
	}
	return n
}

// Pack encodes values according to the layout. Integer fields take any
// unsigned integer type, block fields take a []byte of the declared length.
func (l Layout) Pack(values ...any) ([]byte, error) {
	if len(values) != len(l) {
		return nil, fmt.Errorf("layout has %d fields, got %d values", len(l), len(values))
	}
	out := make([]byte, 0, l.Size())
	for i, f := range l {
		if f.isBlock() {
			b, ok := values[i].([]byte)
			if !ok || len(b) != f.size() {
				return nil, fmt.Errorf("field %d: want %d-byte block", i, f.size())
			}
			out = append(out, b...)
			continue
		}
		v, ok := toUint64(values[i])
		if !ok {
			return nil, fmt.Errorf("field %d: %T is not an unsigned integer", i, values[i])
		}
		switch f {
		case U8:
			out = append(out, byte(v))
		case U16:
			out = binary.BigEndian.AppendUint16(out, uint16(v))
		case U32:
			out = binary.BigEndian.AppendUint32(out, uint32(v))
		case U64:
			out = binary.BigEndian.AppendUint64(out, v)
		default:
			return nil, fmt.Errorf("field %d: unsupported integer width %d", i, f)
		}
	}
	return out, nil
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	}
	return 0, false
}

// Fields is the result of Cursor.ReadFixed.
type Fields struct {
	layout Layout
	data   []byte
}

func (fs Fields) offset(i int) int {
	off := 0
	for _, f := range fs.layout[:i] {
		off += f.size()
	}
	return off
}

// Uint returns integer field i.
func (fs Fields) Uint(i int) uint64 {
	f := fs.layout[i]
	b := fs.data[fs.offset(i):]
	switch f {
	case U8:
		return uint64(b[0])
	case U16:
		return uint64(binary.BigEndian.Uint16(b))
	case U32:
		return uint64(binary.BigEndian.Uint32(b))
	case U64:
		return binary.BigEndian.Uint64(b)
	}
	panic(fmt.Sprintf("decoder: field %d is not an integer", i))
}

// Bytes returns block field i. The slice aliases the frame.
func (fs Fields) Bytes(i int) []byte {
	off := fs.offset(i)
	return fs.data[off : off+fs.layout[i].size()]
}

// Cursor is a bounds-checked reader over one packet's bytes. Every read
// either consumes exactly what it decoded or fails with ErrTruncated and
// leaves the position untouched. Returned slices alias the frame.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor returns a cursor positioned at the start of b.
func NewCursor(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int { return c.pos }

// Rewind moves the position back to an offset previously returned by
// Offset. It is used to abandon a speculative decode.
func (c *Cursor) Rewind(off int) {
	if off < 0 || off > c.pos {
		panic(fmt.Sprintf("decoder: rewind to %d from %d", off, c.pos))
	}
	c.pos = off
}

func (c *Cursor) need(n int) error {
	if n < 0 || n > c.Remaining() {
		return fmt.Errorf("%w: need %d bytes, %d remaining", core.ErrTruncated, n, c.Remaining())
	}
	return nil
}

// Bytes consumes n bytes.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

// Peek returns the next n bytes without consuming them.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	return c.buf[c.pos : c.pos+n : c.pos+n], nil
}

// ReadFixed consumes layout.Size() bytes and splits them into fields.
func (c *Cursor) ReadFixed(layout Layout) (Fields, error) {
	b, err := c.Bytes(layout.Size())
	if err != nil {
		return Fields{}, err
	}
	return Fields{layout: layout, data: b}, nil
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Bool consumes an XDR boolean.
func (c *Cursor) Bool() (bool, error) {
	b, err := c.Peek(4)
	if err != nil {
		return false, err
	}
	switch binary.BigEndian.Uint32(b) {
	case 0:
		c.pos += 4
		return false, nil
	case 1:
		c.pos += 4
		return true, nil
	}
	return false, fmt.Errorf("%w: xdr bool 0x%x", core.ErrMalformed, binary.BigEndian.Uint32(b))
}

// Opaque consumes an XDR variable-length opaque: a 4-byte length L, L
// bytes and zero padding up to the next 4-byte boundary.
func (c *Cursor) Opaque() ([]byte, error) {
	hdr, err := c.Peek(4)
	if err != nil {
		return nil, err
	}
	n := int64(binary.BigEndian.Uint32(hdr))
	padded := (n + 3) &^ 3
	if padded > int64(c.Remaining()-4) {
		return nil, fmt.Errorf("%w: opaque length %d, %d remaining", core.ErrTruncated, n, c.Remaining()-4)
	}
	start := c.pos + 4
	c.pos = start + int(padded)
	return c.buf[start : start+int(n) : start+int(n)], nil
}

// XDRString consumes an XDR string.
func (c *Cursor) XDRString() (string, error) {
	b, err := c.Opaque()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Uint32Array consumes an XDR variable-length array of unsigned ints.
func (c *Cursor) Uint32Array() ([]uint32, error) {
	start := c.pos
	n, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	if int64(n)*4 > int64(c.Remaining()) {
		c.pos = start
		return nil, fmt.Errorf("%w: array of %d elements, %d bytes remaining", core.ErrTruncated, n, c.Remaining())
	}
	out := make([]uint32, n)
	for i := range out {
		out[i], _ = c.Uint32()
	}
	return out, nil
}

// Rest consumes and returns all remaining bytes.
func (c *Cursor) Rest() []byte {
	b := c.buf[c.pos:len(c.buf):len(c.buf)]
	c.pos = len(c.buf)
	return b
}

// Sub consumes n bytes and returns a cursor over them.
func (c *Cursor) Sub(n int) (*Cursor, error) {
	b, err := c.Bytes(n)
	if err != nil {
		return nil, err
	}
	return NewCursor(b), nil
}

// Unmarshal decodes an XDR value into v and consumes the bytes it used.
func (c *Cursor) Unmarshal(v any) error {
	n, err := xdr.Unmarshal(bytes.NewReader(c.buf[c.pos:]), v)
	if err != nil {
		var ue *xdr.UnmarshalError
		if errors.As(err, &ue) && ue.ErrorCode == xdr.ErrIO {
			return fmt.Errorf("%w: %v", core.ErrTruncated, err)
		}
		return fmt.Errorf("%w: %v", core.ErrMalformed, err)
	}
	c.pos += n
	return nil
}
