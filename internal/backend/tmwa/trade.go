package tmwa

import (
	"fmt"

	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/net/packet"
	"go.uber.org/zap"
)

// Trade response codes, both directions.
const (
	tradeTooFar    = 0
	tradeNoChar    = 1
	tradeFailed    = 2
	tradeAccepted  = 3
	tradeCancelled = 4
)

type tradeHandler struct {
	b *Backend
	// trading is set from a request, sent or received, until the trade ends.
	trading bool
	partner string
}

func (h *tradeHandler) Handles() []uint16 {
	return []uint16{smsgTradeRequest, smsgTradeResponse, smsgTradeCancel, smsgTradeComplete}
}

func (h *tradeHandler) Handle(r *packet.Reader) {
	switch r.ID() {
	case smsgTradeRequest:
		name := r.ReadString(24)
		if h.trading {
			// One trade at a time.
			if err := h.Respond(false); err != nil {
				h.b.log.Debug("交易拒絕未送出", zap.Error(err))
			}
			return
		}
		h.trading = true
		h.partner = name
		event.Emit(h.b.bus, event.TradeRequested{From: name})

	case smsgTradeResponse:
		switch code := r.ReadUint8(); code {
		case tradeTooFar:
			h.end("rejected", "Trading isn't possible. Trade partner is too far away.")
		case tradeNoChar:
			h.end("rejected", "Trading isn't possible. Character doesn't exist.")
		case tradeFailed:
			h.end("rejected", "Trade canceled due to an unknown reason.")
		case tradeAccepted:
			h.b.log.Info("交易開始", zap.String("partner", h.partner))
		case tradeCancelled:
			h.end("cancelled", fmt.Sprintf("Trade with %s canceled.", h.partner))
		default:
			h.b.log.Warn("未知的交易回應", zap.Uint8("code", code))
		}

	case smsgTradeCancel:
		h.end("cancelled", "Trade canceled.")

	case smsgTradeComplete:
		h.end("complete", "Trade completed.")
	}
}

func (h *tradeHandler) end(outcome, notice string) {
	h.trading = false
	h.partner = ""
	h.b.notice(notice)
	event.Emit(h.b.bus, event.TradeEnded{Outcome: outcome})
}

// Request asks the being to trade. The partner's name is filled in from
// the world when known.
func (h *tradeHandler) Request(beingID int32) error {
	w := h.b.codec.NewWriter(cmsgTradeRequest)
	w.WriteInt32(beingID)
	if err := h.b.send(hopMap, w); err != nil {
		return err
	}
	h.trading = true
	h.partner = ""
	if being, ok := h.b.sess.World.Get(beingID); ok {
		h.partner = being.Name
	}
	return nil
}

func (h *tradeHandler) Respond(accept bool) error {
	code := uint8(tradeCancelled)
	if accept {
		code = tradeAccepted
	} else {
		h.trading = false
	}
	w := h.b.codec.NewWriter(cmsgTradeResponse)
	w.WriteUint8(code)
	return h.b.send(hopMap, w)
}

func (h *tradeHandler) Cancel() error {
	h.trading = false
	return h.b.send(hopMap, h.b.codec.NewWriter(cmsgTradeCancelRequest))
}

func (h *tradeHandler) reset() {
	h.trading = false
	h.partner = ""
}
