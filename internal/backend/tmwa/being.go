package tmwa

import (
	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/world"
	"go.uber.org/zap"
)

// Ids from this value up with job 0 are server-side ghosts.
const ghostID = 110000000

// defaultSpeed is used when a being reports a speed of 0, in ms per tile.
const defaultSpeed = 150

type beingHandler struct {
	b *Backend
}

func (h *beingHandler) Handles() []uint16 {
	return []uint16{
		smsgBeingVisible,
		smsgBeingMove,
		smsgBeingRemove,
		smsgBeingChangeDir,
		smsgPlayerStop,
		smsgBeingNameResponse,
		smsgWalkResponse,
		smsgPlayerWarp,
	}
}

func (h *beingHandler) Handle(r *packet.Reader) {
	w := h.b.sess.World
	switch r.ID() {
	case smsgBeingVisible, smsgBeingMove:
		h.handleBeing(r)

	case smsgBeingRemove:
		id := r.ReadInt32()
		dead := r.ReadUint8() == 1
		if dead {
			// Corpses stay on the map until the server removes them.
			if _, ok := w.Get(id); ok {
				event.Emit(h.b.bus, event.BeingRemoved{ID: id, Dead: true})
			}
			return
		}
		if w.Remove(id) {
			event.Emit(h.b.bus, event.BeingRemoved{ID: id})
		}

	case smsgBeingChangeDir:
		id := r.ReadInt32()
		r.Skip(2)
		dir := r.ReadUint8()
		if b, ok := w.Get(id); ok && dir != 0 {
			b.Dir = dir
		}

	case smsgPlayerStop:
		id := r.ReadInt32()
		x, y := r.ReadUint16(), r.ReadUint16()
		if x == 0 || y == 0 {
			return
		}
		if b, ok := w.MoveTo(id, x, y); ok {
			h.moved(b)
		}

	case smsgBeingNameResponse:
		id := r.ReadInt32()
		if b, ok := w.Get(id); ok {
			b.Name = r.ReadString(24)
		}

	case smsgWalkResponse:
		// The player's own walk is predicted locally.

	case smsgPlayerWarp:
		mapName := stripExtension(r.ReadString(16))
		x, y := r.ReadUint16(), r.ReadUint16()
		h.b.log.Info("傳送", zap.String("map", mapName), zap.Uint16("x", x), zap.Uint16("y", y))
		w.ChangeMap(mapName)
		if p, ok := w.MoveTo(w.PlayerID, x, y); ok {
			h.moved(p)
		}
		if err := h.b.game.ChangeMap(mapName); err != nil {
			h.b.log.Warn("地圖載入回報失敗", zap.Error(err))
		}
	}
}

// handleBeing reads SMSG_BEING_VISIBLE and SMSG_BEING_MOVE, which share
// their layout except for the move tick and the coordinates.
func (h *beingHandler) handleBeing(r *packet.Reader) {
	w := h.b.sess.World
	moving := r.ID() == smsgBeingMove

	id := r.ReadInt32()
	speed := r.ReadUint16()
	r.Skip(6) // opt1, opt2, opt0
	job := r.ReadUint16()

	cur, known := w.Get(id)
	typ := world.TypeFromJob(job)
	if !known && (typ == world.BeingPortal || (job == 0 && id >= ghostID)) {
		return
	}
	if speed == 0 {
		speed = defaultSpeed
	}

	r.Skip(6) // hair style, weapon, head bottom
	if moving {
		r.Skip(4) // server tick
	}
	// Shield, head top, head mid, hair color, shoes, gloves, guild, emblem,
	// manner, opt3, karma.
	r.Skip(12 + 4 + 6 + 1)
	gender := r.ReadUint8()

	b := world.Being{ID: id, Type: typ, Job: job, Speed: speed, Gender: gender}
	if known {
		b.Name = cur.Name
	}
	if moving {
		b.X, b.Y, b.DestX, b.DestY = r.ReadCoordinatePair()
	} else {
		b.X, b.Y, b.Dir = r.ReadCoordinates()
		b.DestX, b.DestY = b.X, b.Y
	}
	r.Skip(3)

	if (!known && (typ == world.BeingPlayer || typ == world.BeingNPC)) ||
		(known && typ == world.BeingPlayer && cur.Type != world.BeingPlayer) {
		h.requestName(id)
	}
	h.moved(w.Upsert(b))
}

func (h *beingHandler) requestName(id int32) {
	msg := h.b.codec.NewWriter(cmsgNameRequest)
	msg.WriteInt32(id)
	if err := h.b.send(hopMap, msg); err != nil {
		h.b.log.Debug("名稱查詢未送出", zap.Int32("id", id), zap.Error(err))
	}
}

func (h *beingHandler) moved(b *world.Being) {
	event.Emit(h.b.bus, event.BeingMoved{ID: b.ID, Name: b.Name, X: b.X, Y: b.Y, Dir: b.Dir})
}
