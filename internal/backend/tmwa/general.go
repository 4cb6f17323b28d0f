package tmwa

import (
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"go.uber.org/zap"
)

// generalHandler handles messages any of the servers may send.
type generalHandler struct {
	b *Backend
}

func (h *generalHandler) Handles() []uint16 {
	return []uint16{smsgConnectionProblem}
}

func (h *generalHandler) Handle(r *packet.Reader) {
	code := r.ReadUint8()
	h.b.log.Warn("伺服器回報連線問題", zap.Uint8("code", code))

	var msg string
	switch code {
	case 0:
		msg = "Authentication failed."
	case 1:
		msg = "No servers available."
	case 2:
		if h.b.ctrl.State() == session.StateGame {
			msg = "Someone else is trying to use this account."
		} else {
			msg = "This account is already logged in."
		}
	case 3:
		msg = "Speed hack detected."
	case 8:
		msg = "Duplicated login."
	default:
		msg = "Unknown connection error."
	}
	h.b.ctrl.Fail(msg)
}
