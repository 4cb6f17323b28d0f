package manaserv

import (
	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/world"
	"go.uber.org/zap"
)

type beingHandler struct {
	b *Backend
}

func (h *beingHandler) Handles() []uint16 {
	return []uint16{gpmsgBeingEnter, gpmsgBeingLeave, gpmsgBeingsMove}
}

func (h *beingHandler) Handle(r *packet.Reader) {
	w := h.b.sess.World
	switch r.ID() {
	case gpmsgBeingEnter:
		h.enter(r)

	case gpmsgBeingLeave:
		id := int32(r.ReadUint16())
		if w.Remove(id) {
			event.Emit(h.b.bus, event.BeingRemoved{ID: id})
		}

	case gpmsgBeingsMove:
		for r.Remaining() > 0 {
			id := int32(r.ReadUint16())
			flags := r.ReadUint8()
			if flags&(movingPosition|movingDestination) == 0 {
				continue
			}
			b, known := w.Get(id)
			var x, y uint16
			if flags&movingPosition != 0 {
				x, y = r.ReadUint16()/tileSize, r.ReadUint16()/tileSize
			} else if known {
				x, y = b.X, b.Y
			}
			destX, destY := x, y
			var speed uint16
			if flags&movingDestination != 0 {
				destX, destY = r.ReadUint16()/tileSize, r.ReadUint16()/tileSize
				speed = uint16(r.ReadUint8())
			}
			if !known {
				continue
			}
			if flags&movingPosition != 0 {
				w.MoveTo(id, x, y)
			}
			b.DestX, b.DestY = destX, destY
			if speed != 0 {
				b.Speed = speed
			}
			h.moved(b)
		}
	}
}

func (h *beingHandler) enter(r *packet.Reader) {
	w := h.b.sess.World
	typ := r.ReadUint8()
	b := world.Being{ID: int32(r.ReadUint16())}
	r.Skip(1) // action
	b.X, b.Y = r.ReadUint16()/tileSize, r.ReadUint16()/tileSize
	b.DestX, b.DestY = b.X, b.Y
	b.Dir = r.ReadUint8()

	switch typ {
	case objectCharacter:
		b.Type = world.BeingPlayer
		b.Name = r.ReadLenString()
		r.Skip(2) // hair style, hair color
		b.Gender = r.ReadUint8()
		if c, ok := h.b.sess.SelectedCharacter(); ok && c.Name == b.Name {
			w.PlayerID = b.ID
		}
	case objectMonster:
		b.Type = world.BeingMonster
		b.Job = r.ReadUint16()
	case objectNPC:
		b.Type = world.BeingNPC
		b.Job = r.ReadUint16()
		b.Name = r.ReadLenString()
	default:
		h.b.log.Debug("未知的物件類型", zap.Uint8("type", typ), zap.Int32("id", b.ID))
		return
	}
	h.moved(w.Upsert(b))
}

func (h *beingHandler) moved(b *world.Being) {
	event.Emit(h.b.bus, event.BeingMoved{ID: b.ID, Name: b.Name, X: b.X, Y: b.Y, Dir: b.Dir})
}
