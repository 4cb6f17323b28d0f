package tmwa

import (
	"fmt"
	"strings"

	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"github.com/manago/client/internal/world"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// serverNick marks a whisper that is really a server notice.
const serverNick = "Server"

type chatHandler struct {
	b       *Backend
	limiter *rate.Limiter
	// whispers holds the recipients of sent whispers, oldest first. The
	// server answers them in order without naming the recipient.
	whispers []string
}

func (h *chatHandler) Handles() []uint16 {
	return []uint16{smsgBeingChat, smsgPlayerChat, smsgGMChat, smsgWhisper, smsgWhisperResponse}
}

func (h *chatHandler) Handle(r *packet.Reader) {
	switch r.ID() {
	case smsgWhisperResponse:
		nick := "user"
		if len(h.whispers) > 0 {
			nick = h.whispers[0]
			h.whispers = h.whispers[1:]
		}
		switch r.ReadUint8() {
		case 1:
			h.b.notice(fmt.Sprintf("Whisper could not be sent, %s is offline.", nick))
		case 2:
			h.b.notice(fmt.Sprintf("Whisper could not be sent, ignored by %s.", nick))
		}

	case smsgWhisper:
		n := int(r.ReadUint16()) - 28
		nick := r.ReadString(24)
		if n <= 0 {
			return
		}
		text := r.ReadString(n)
		if nick == serverNick {
			h.b.notice(text)
			return
		}
		h.emit(event.ChatWhisper, nick, text)

	case smsgBeingChat:
		n := int(r.ReadUint16()) - 8
		id := r.ReadInt32()
		b, ok := h.b.sess.World.Get(id)
		if !ok || n <= 0 {
			return
		}
		from, text := splitSpeaker(r.ReadString(n))
		// Players may not claim another name.
		if b.Type == world.BeingPlayer && b.Name != "" && from != b.Name {
			from = b.Name
		}
		h.emit(event.ChatPublic, from, text)

	case smsgPlayerChat, smsgGMChat:
		n := int(r.ReadUint16()) - packet.HeaderSize
		if n <= 0 {
			return
		}
		text := r.ReadString(n)
		if r.ID() == smsgGMChat {
			h.emit(event.ChatGM, "", strings.TrimSpace(text))
			return
		}
		_, text = splitSpeaker(text)
		var self string
		if p, ok := h.b.sess.World.Player(); ok {
			self = p.Name
		}
		h.emit(event.ChatSelf, self, text)
	}
}

// splitSpeaker splits "name : text". A line without a speaker keeps its
// text whole.
func splitSpeaker(line string) (from, text string) {
	from, text, ok := strings.Cut(line, " : ")
	if !ok {
		return "", strings.TrimSpace(line)
	}
	return from, strings.TrimSpace(text)
}

func (h *chatHandler) emit(channel, from, text string) {
	h.b.log.Debug("聊天", zap.String("channel", channel), zap.String("from", from))
	event.Emit(h.b.bus, event.ChatReceived{Channel: channel, From: from, Text: text})
}

// Talk says text on the map, prefixed with the player's name as the server
// expects.
func (h *chatHandler) Talk(text string) error {
	if !h.limiter.Allow() {
		return session.ErrChatFlood
	}
	var name string
	if p, ok := h.b.sess.World.Player(); ok {
		name = p.Name
	}
	w := h.b.codec.NewVarWriter(cmsgChatMessage)
	w.WriteText(name + " : " + text)
	// The trailing NUL lets the server parse GM commands.
	w.WriteUint8(0)
	return h.b.send(hopMap, w)
}

func (h *chatHandler) PrivateMessage(recipient, text string) error {
	if !h.limiter.Allow() {
		return session.ErrChatFlood
	}
	w := h.b.codec.NewVarWriter(cmsgChatWhisper)
	w.WriteString(recipient, 24)
	w.WriteText(text)
	if err := h.b.send(hopMap, w); err != nil {
		return err
	}
	h.whispers = append(h.whispers, recipient)
	return nil
}

func (h *chatHandler) reset() {
	h.whispers = nil
}
