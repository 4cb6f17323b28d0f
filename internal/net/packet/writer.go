package packet

import (
	"errors"
	"math"
)

// ErrMessageTooLong is reported for a message or string field whose length
// does not fit the 16-bit length field of the wire format.
var ErrMessageTooLong = errors.New("message too long")

// Writer builds one outbound message. The id is written on construction.
type Writer struct {
	codec  Codec
	buf    []byte
	varLen bool
	err    error
}

// NewWriter starts a fixed-length message.
func (c Codec) NewWriter(id uint16) *Writer {
	w := &Writer{codec: c, buf: make([]byte, 0, 32)}
	w.WriteUint16(id)
	return w
}

// NewVarWriter starts a variable-length message. A 2-byte length placeholder
// follows the id and is patched by Bytes.
func (c Codec) NewVarWriter(id uint16) *Writer {
	w := c.NewWriter(id)
	w.WriteUint16(0)
	w.varLen = true
	return w
}

func (w *Writer) WriteUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteInt8(v int8) { w.WriteUint8(uint8(v)) }

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	w.codec.Order.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteInt16(v int16) { w.WriteUint16(uint16(v)) }

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	w.codec.Order.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }

// WriteString writes s into a fixed-width field of n bytes, truncating or
// NUL-padding as needed. n < 0 writes a 16-bit length prefix instead.
func (w *Writer) WriteString(s string, n int) {
	raw := w.codec.encode(s)
	if n < 0 {
		if len(raw) > math.MaxUint16 && w.err == nil {
			w.err = ErrMessageTooLong
		}
		w.WriteUint16(uint16(len(raw)))
		w.buf = append(w.buf, raw...)
		return
	}
	if len(raw) > n {
		raw = raw[:n]
	}
	w.buf = append(w.buf, raw...)
	for i := len(raw); i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// WriteText writes s with neither padding nor prefix. The enclosing
// message's length field delimits it.
func (w *Writer) WriteText(s string) { w.buf = append(w.buf, w.codec.encode(s)...) }

// WriteLenString writes s with a 16-bit length prefix.
func (w *Writer) WriteLenString(s string) { w.WriteString(s, -1) }

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteCoordinates packs x, y and client direction bits into 3 bytes.
func (w *Writer) WriteCoordinates(x, y uint16, dir uint8) {
	tx := x << 6
	ty := y << 4
	w.buf = append(w.buf,
		byte(tx>>8),
		byte(tx)|byte(ty>>8),
		byte(ty)|DirectionToWire(dir)&0x0f,
	)
}

// Len returns the current message length.
func (w *Writer) Len() int { return len(w.buf) }

// Err reports whether the message can be encoded. Bytes of a message with
// an error is garbage and must not be sent.
func (w *Writer) Err() error {
	if w.err != nil {
		return w.err
	}
	if w.varLen && len(w.buf) > math.MaxUint16 {
		return ErrMessageTooLong
	}
	return nil
}

// Bytes returns the finished message, patching the length field of a
// variable-length message.
func (w *Writer) Bytes() []byte {
	if w.varLen {
		w.codec.Order.PutUint16(w.buf[2:4], uint16(len(w.buf)))
	}
	return w.buf
}
