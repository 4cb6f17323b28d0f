package net

// Buffer is a byte queue consumed from the front. Skip only moves an offset;
// the consumed prefix is compacted once it outgrows half the capacity, so
// draining packet by packet stays linear overall. Buffer is not
// synchronized; Conn guards it with its mutex.
type Buffer struct {
	data   []byte
	start  int // consumed bytes still at the front of data
	toSkip int // consumed bytes that have not arrived yet
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Append adds received bytes, first discarding any pending skip.
func (b *Buffer) Append(p []byte) {
	if b.toSkip > 0 {
		n := min(b.toSkip, len(p))
		p = p[n:]
		b.toSkip -= n
	}
	b.data = append(b.data, p...)
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int { return len(b.data) - b.start }

// Bytes returns a view of the unconsumed bytes. The view is valid until the
// next Skip, Unread or Reset.
func (b *Buffer) Bytes() []byte {
	return b.data[b.start:len(b.data):len(b.data)]
}

// Skip consumes n bytes. Skipping past the end records the excess, which is
// dropped from the next Append.
func (b *Buffer) Skip(n int) {
	if n <= 0 {
		return
	}
	if avail := b.Len(); n > avail {
		b.toSkip += n - avail
		n = avail
	}
	b.start += n
	switch {
	case b.start == len(b.data):
		b.data = b.data[:0]
		b.start = 0
	case b.start > cap(b.data)/2:
		m := copy(b.data, b.data[b.start:])
		b.data = b.data[:m]
		b.start = 0
	}
}

// Unread puts p back in front of the unconsumed bytes.
func (b *Buffer) Unread(p []byte) {
	if len(p) == 0 {
		return
	}
	if len(p) <= b.start {
		b.start -= len(p)
		copy(b.data[b.start:], p)
		return
	}
	merged := make([]byte, 0, len(p)+b.Len()+cap(b.data)/2)
	merged = append(merged, p...)
	merged = append(merged, b.Bytes()...)
	b.data = merged
	b.start = 0
}

// Reset drops everything, including a pending skip.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.start = 0
	b.toSkip = 0
}
