package manaserv

import (
	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type chatHandler struct {
	b       *Backend
	limiter *rate.Limiter
}

func (h *chatHandler) Handles() []uint16 {
	return []uint16{gpmsgSay, cpmsgConnectResponse, cpmsgPrivMsg, cpmsgAnnouncement}
}

func (h *chatHandler) Handle(r *packet.Reader) {
	switch r.ID() {
	case gpmsgSay:
		id := int32(r.ReadUint16())
		text := r.ReadLenString()
		w := h.b.sess.World
		switch {
		case id == 0:
			h.b.notice(text)
		case id == w.PlayerID:
			h.emit(event.ChatSelf, h.name(id), text)
		default:
			h.emit(event.ChatPublic, h.name(id), text)
		}

	case cpmsgConnectResponse:
		if code := r.ReadUint8(); code != errOK {
			// The session goes on without chat.
			h.b.log.Warn("聊天伺服器拒絕連線", zap.Uint8("code", code))
			h.b.notice("Chat server: " + errorText(code))
		}

	case cpmsgPrivMsg:
		from := r.ReadLenString()
		h.emit(event.ChatWhisper, from, r.ReadLenString())

	case cpmsgAnnouncement:
		h.emit(event.ChatGM, "", r.ReadLenString())
	}
}

func (h *chatHandler) name(id int32) string {
	if b, ok := h.b.sess.World.Get(id); ok {
		return b.Name
	}
	return ""
}

func (h *chatHandler) emit(channel, from, text string) {
	h.b.log.Debug("聊天", zap.String("channel", channel), zap.String("from", from))
	event.Emit(h.b.bus, event.ChatReceived{Channel: channel, From: from, Text: text})
}

// connect joins the chat server with the game token. A failure leaves the
// session running.
func (h *chatHandler) connect(secret string) {
	ep := h.b.sess.ChatServer
	if ep.Host == "" {
		return
	}
	if err := h.b.connect(h.b.chat, ep); err != nil {
		h.b.log.Warn("聊天伺服器連線失敗", zap.Error(err))
		return
	}
	w := h.b.codec.NewWriter(pcmsgConnect)
	w.WriteBytes(tokenBytes(secret))
	if err := h.b.send(h.b.chat, w); err != nil {
		h.b.log.Warn("聊天伺服器連線失敗", zap.Error(err))
	}
}

// Talk says text on the map through the game server.
func (h *chatHandler) Talk(text string) error {
	if !h.limiter.Allow() {
		return session.ErrChatFlood
	}
	w := h.b.codec.NewWriter(pgmsgSay)
	w.WriteLenString(text)
	return h.b.send(h.b.game, w)
}

func (h *chatHandler) PrivateMessage(recipient, text string) error {
	if !h.limiter.Allow() {
		return session.ErrChatFlood
	}
	w := h.b.codec.NewWriter(pcmsgPrivMsg)
	w.WriteLenString(recipient)
	w.WriteLenString(text)
	return h.b.send(h.b.chat, w)
}
