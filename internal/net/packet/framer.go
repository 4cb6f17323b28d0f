package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorruptStream means the stream can no longer be split into messages.
var ErrCorruptStream = errors.New("corrupt packet stream")

// Framer splits a byte stream into messages using a descriptor table.
type Framer struct {
	Order binary.ByteOrder
	Table *Table
}

// Frame returns the length of the complete message at the head of buf, or 0
// when more bytes are needed. Ids missing from the table are framed by their
// length field, which is the only length information available for them.
func (f Framer) Frame(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, nil
	}
	id := f.Order.Uint16(buf)
	d, known := f.Table.Lookup(id)
	length := d.Length
	if !known || length == VarLength {
		if len(buf) < HeaderSize {
			return 0, nil
		}
		length = int(f.Order.Uint16(buf[2:]))
		if length < HeaderSize {
			if known {
				return 0, fmt.Errorf("%w: message 0x%04x declares length %d", ErrCorruptStream, id, length)
			}
			return 0, fmt.Errorf("%w: unknown message 0x%04x with no usable length (%d)", ErrCorruptStream, id, length)
		}
	}
	if len(buf) < length {
		return 0, nil
	}
	return length, nil
}
