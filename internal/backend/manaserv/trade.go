package manaserv

import (
	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/net/packet"
	"go.uber.org/zap"
)

type tradeHandler struct {
	b *Backend
	// requester is the being whose request awaits an answer, 0 when none.
	requester int32
	trading   bool
}

func (h *tradeHandler) Handles() []uint16 {
	return []uint16{gpmsgTradeRequest, gpmsgTradeStart, gpmsgTradeComplete, gpmsgTradeCancel}
}

func (h *tradeHandler) Handle(r *packet.Reader) {
	switch r.ID() {
	case gpmsgTradeRequest:
		id := int32(r.ReadUint16())
		if h.trading || h.requester != 0 {
			// One trade at a time.
			w := h.b.codec.NewWriter(pgmsgTradeCancel)
			if err := h.b.send(h.b.game, w); err != nil {
				h.b.log.Debug("交易拒絕未送出", zap.Error(err))
			}
			return
		}
		h.requester = id
		var name string
		if b, ok := h.b.sess.World.Get(id); ok {
			name = b.Name
		}
		event.Emit(h.b.bus, event.TradeRequested{From: name})

	case gpmsgTradeStart:
		h.requester = 0
		h.trading = true
		h.b.log.Info("交易開始")

	case gpmsgTradeComplete:
		h.end("complete", "Trade completed.")

	case gpmsgTradeCancel:
		h.end("cancelled", "Trade canceled.")
	}
}

func (h *tradeHandler) end(outcome, notice string) {
	h.reset()
	h.b.notice(notice)
	event.Emit(h.b.bus, event.TradeEnded{Outcome: outcome})
}

func (h *tradeHandler) Request(beingID int32) error {
	w := h.b.codec.NewWriter(pgmsgTradeRequest)
	w.WriteUint16(uint16(beingID))
	return h.b.send(h.b.game, w)
}

// Respond accepts a request by asking the requester back, which the game
// server treats as agreement.
func (h *tradeHandler) Respond(accept bool) error {
	id := h.requester
	h.requester = 0
	if !accept || id == 0 {
		return h.b.send(h.b.game, h.b.codec.NewWriter(pgmsgTradeCancel))
	}
	return h.Request(id)
}

func (h *tradeHandler) Cancel() error {
	h.reset()
	return h.b.send(h.b.game, h.b.codec.NewWriter(pgmsgTradeCancel))
}

func (h *tradeHandler) reset() {
	h.requester = 0
	h.trading = false
}
