package packet

import (
	"errors"
	"fmt"

	"github.com/manago/client/internal/metrics"
	"go.uber.org/zap"
)

// Handler consumes the message ids it declares. Handle runs on the main
// thread and must not retain r after returning.
type Handler interface {
	Handles() []uint16
	Handle(r *Reader)
}

// Source yields framed messages. Next returns (nil, nil) when no complete
// message is buffered; Consume releases the n-byte message Next returned;
// Fail closes the source after an unrecoverable framing or handler error.
type Source interface {
	Next() ([]byte, error)
	Consume(n int)
	Fail(err error)
}

// Dispatcher maps message ids to handlers and drains a Source once per tick.
// It is not safe for concurrent use.
type Dispatcher struct {
	codec    Codec
	names    *Table
	handlers map[uint16]Handler
	maxBytes int
	log      *zap.Logger
}

// NewDispatcher creates a dispatcher. maxBytes caps the bytes consumed by a
// single DispatchPending call; 0 means unlimited.
func NewDispatcher(codec Codec, names *Table, maxBytes int, log *zap.Logger) *Dispatcher {
	if names == nil {
		names = NewTable()
	}
	return &Dispatcher{
		codec:    codec,
		names:    names,
		handlers: make(map[uint16]Handler),
		maxBytes: maxBytes,
		log:      log,
	}
}

// Register binds every id h declares. An id already bound to another
// handler is rebound with a warning.
func (d *Dispatcher) Register(h Handler) {
	for _, id := range h.Handles() {
		if prev, ok := d.handlers[id]; ok && prev != h {
			d.log.Warn("處理器已被取代", zap.String("msg", d.names.Name(id)))
		}
		d.handlers[id] = h
	}
}

// Unregister removes the ids still bound to h.
func (d *Dispatcher) Unregister(h Handler) {
	for _, id := range h.Handles() {
		if d.handlers[id] == h {
			delete(d.handlers, id)
		}
	}
}

// Clear removes every registration.
func (d *Dispatcher) Clear() {
	clear(d.handlers)
}

func (d *Dispatcher) Handled(id uint16) bool {
	_, ok := d.handlers[id]
	return ok
}

// DispatchPending handles every complete message currently buffered in src,
// in arrival order, stopping early once the byte budget is spent. At least
// one message is handled per call when one is available. It returns the
// number of messages consumed.
func (d *Dispatcher) DispatchPending(src Source) int {
	budget := d.maxBytes
	n := 0
	for {
		msg, err := src.Next()
		if err != nil {
			metrics.Packets.WithLabelValues("corrupt").Inc()
			d.log.Error("封包串流損毀，關閉連線", zap.Error(err))
			src.Fail(err)
			return n
		}
		if msg == nil {
			return n
		}

		if err := d.dispatch(msg); err != nil {
			src.Fail(err)
			return n
		}
		src.Consume(len(msg))
		n++

		if d.maxBytes > 0 {
			budget -= len(msg)
			if budget <= 0 {
				return n
			}
		}
	}
}

func (d *Dispatcher) dispatch(msg []byte) error {
	r := d.codec.NewReader(msg)
	id := r.ID()
	h, ok := d.handlers[id]
	if !ok {
		metrics.Packets.WithLabelValues("unhandled").Inc()
		d.log.Warn("未處理的封包",
			zap.String("msg", d.names.Name(id)),
			zap.Int("len", len(msg)),
		)
		return nil
	}
	metrics.Packets.WithLabelValues("handled").Inc()
	return d.safeCall(h, r)
}

// safeCall runs a handler, converting a panic into an error. A panic is a
// handler bug: DPanic makes it fatal in development builds.
func (d *Dispatcher) safeCall(h Handler, r *Reader) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.Packets.WithLabelValues("panic").Inc()
			if e, ok := rec.(error); ok {
				err = fmt.Errorf("handler for %s: %w", d.names.Name(r.ID()), e)
			} else {
				err = fmt.Errorf("handler for %s: %v", d.names.Name(r.ID()), rec)
			}
			d.log.DPanic("處理器 panic",
				zap.String("msg", d.names.Name(r.ID())),
				zap.Bool("overrun", errors.Is(err, ErrReadOverrun)),
				zap.Error(err),
			)
		}
	}()
	h.Handle(r)
	return nil
}
