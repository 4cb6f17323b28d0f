package packet

import (
	"errors"
	"fmt"
)

// ErrReadOverrun is raised (as a panic value) when a handler reads past the
// end of its message. It always indicates a handler bug, never bad input:
// the framer guarantees the view is exactly one declared message long.
var ErrReadOverrun = errors.New("read past end of message")

// Reader is a cursor over exactly one framed message. Bytes 0-1 are the
// message id; reads start right after it.
type Reader struct {
	codec Codec
	data  []byte
	off   int
}

// NewReader wraps one complete message. data is not copied and must not be
// retained after the handler returns.
func (c Codec) NewReader(data []byte) *Reader {
	return &Reader{codec: c, data: data, off: 2}
}

func (r *Reader) ID() uint16 {
	if len(r.data) < 2 {
		return 0
	}
	return r.codec.Order.Uint16(r.data)
}

// Len is the total message length including the id.
func (r *Reader) Len() int { return len(r.data) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Offset returns the cursor position from the start of the message.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) need(n int) {
	if n < 0 || r.off+n > len(r.data) {
		panic(fmt.Errorf("%w: message 0x%04x wants %d bytes at offset %d, length %d",
			ErrReadOverrun, r.ID(), n, r.off, len(r.data)))
	}
}

func (r *Reader) ReadUint8() uint8 {
	r.need(1)
	v := r.data[r.off]
	r.off++
	return v
}

func (r *Reader) ReadInt8() int8 { return int8(r.ReadUint8()) }

func (r *Reader) ReadUint16() uint16 {
	r.need(2)
	v := r.codec.Order.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *Reader) ReadInt16() int16 { return int16(r.ReadUint16()) }

func (r *Reader) ReadUint32() uint32 {
	r.need(4)
	v := r.codec.Order.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *Reader) ReadInt32() int32 { return int32(r.ReadUint32()) }

// ReadString reads a fixed-width field of n bytes and trims it at the first
// NUL.
func (r *Reader) ReadString(n int) string {
	r.need(n)
	raw := r.data[r.off : r.off+n]
	r.off += n
	for i, b := range raw {
		if b == 0 {
			raw = raw[:i]
			break
		}
	}
	return r.codec.decode(raw)
}

// ReadLenString reads a string prefixed by its 16-bit byte length.
func (r *Reader) ReadLenString() string {
	n := int(r.ReadUint16())
	return r.ReadString(n)
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) []byte {
	r.need(n)
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

func (r *Reader) Skip(n int) {
	r.need(n)
	r.off += n
}

// ReadCoordinates unpacks the 3-byte position block: 10-bit x, 10-bit y and
// a direction nibble, translated to client direction bits.
func (r *Reader) ReadCoordinates() (x, y uint16, dir uint8) {
	r.need(3)
	p := r.data[r.off : r.off+3]
	r.off += 3
	x = uint16(p[0])<<2 | uint16(p[1])>>6
	y = uint16(p[1]&0x3f)<<4 | uint16(p[2])>>4
	dir = DirectionFromWire(p[2] & 0x0f)
	return x, y, dir
}

// ReadCoordinatePair unpacks the 5-byte source/destination block of a move.
func (r *Reader) ReadCoordinatePair() (srcX, srcY, dstX, dstY uint16) {
	r.need(5)
	p := r.data[r.off : r.off+5]
	r.off += 5
	srcX = (uint16(p[0])<<8 | uint16(p[1])) >> 6
	srcY = (uint16(p[1]&0x3f)<<8 | uint16(p[2])) >> 4
	dstX = (uint16(p[2]&0x0f)<<8 | uint16(p[3])) >> 2
	dstY = uint16(p[3]&0x03)<<8 | uint16(p[4])
	return srcX, srcY, dstX, dstY
}
