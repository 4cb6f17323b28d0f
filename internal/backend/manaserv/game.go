package manaserv

import (
	"bytes"
	"strings"

	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"go.uber.org/zap"
)

type gameHandler struct {
	b *Backend
	// Spawn point of the last map change, used until the player's being
	// is known.
	pendingX, pendingY uint16
}

func (h *gameHandler) Handles() []uint16 {
	return []uint16{gpmsgConnectResponse, gpmsgDisconnectResponse, gpmsgPlayerMapChange, gpmsgPlayerServerChange}
}

func (h *gameHandler) Handle(r *packet.Reader) {
	sess := h.b.sess
	switch r.ID() {
	case gpmsgConnectResponse:
		if code := r.ReadUint8(); code != errOK {
			h.b.ctrl.Fail("Game server: " + errorText(code))
			return
		}
		// The game server owns the player from here on. It does not wait
		// for a map-loaded reply, so beings may follow in this same batch.
		h.b.account.Disconnect()
		h.b.EnterWorld()
		h.b.ctrl.SetState(session.StateGame)

	case gpmsgDisconnectResponse:
		code := r.ReadUint8()
		if code != errOK {
			if code == errNoLogin {
				h.b.ctrl.Fail("Gameserver: Not logged in")
			} else {
				h.b.ctrl.Fail("Gameserver: Unknown error")
			}
			return
		}
		var token []byte
		if r.Remaining() >= tokenSize {
			token = r.ReadBytes(tokenSize)
		}
		if len(bytes.Trim(token, "\x00")) == 0 {
			if h.b.ctrl.State() == session.StateLogoutAttempt {
				h.b.ctrl.SetState(session.StateExit)
			}
			return
		}
		sess.Token.Secret = string(token)
		sess.Token.Arm()
		h.b.ctrl.SetState(session.StateSwitchCharacter)

	case gpmsgPlayerMapChange:
		name := stripExtension(r.ReadLenString())
		x, y := r.ReadUint16()/tileSize, r.ReadUint16()/tileSize
		h.b.log.Info("進入地圖", zap.String("map", name), zap.Uint16("x", x), zap.Uint16("y", y))
		w := sess.World
		w.ChangeMap(name)
		w.MoveTo(w.PlayerID, x, y)
		h.pendingX, h.pendingY = x, y
		if h.b.ctrl.State() == session.StateGame {
			if err := h.ChangeMap(name); err != nil {
				h.b.log.Warn("地圖切換失敗", zap.Error(err))
			}
		}

	case gpmsgPlayerServerChange:
		token := r.ReadBytes(tokenSize)
		ep := session.Endpoint{Host: r.ReadLenString(), Port: r.ReadUint16()}
		if sess.Server.PersistentIP {
			ep.Host = sess.Server.Host
		}
		sess.Token.Secret = string(token)
		sess.GameServer = ep
		sess.Token.Arm()
		h.b.log.Info("切換遊戲伺服器", zap.Stringer("addr", ep))
		h.b.game.Disconnect()
		h.b.ctrl.SetState(session.StateChangeMap)
	}
}

// Connect hands the token from character selection, or from a server
// change, to the game and chat servers.
func (h *gameHandler) Connect() error {
	tok, err := h.b.sess.Token.Consume()
	if err != nil {
		return err
	}
	if tok.Secret == "" {
		return session.ErrNoToken
	}
	if err := h.b.connect(h.b.game, h.b.sess.GameServer); err != nil {
		return err
	}
	w := h.b.codec.NewWriter(pgmsgConnect)
	w.WriteBytes(tokenBytes(tok.Secret))
	if err := h.b.send(h.b.game, w); err != nil {
		return err
	}
	if h.b.ctrl.State() == session.StateConnectGame {
		h.b.chatH.connect(tok.Secret)
	}
	return nil
}

func (h *gameHandler) IsConnected() bool { return h.b.game.IsConnected() }

func (h *gameHandler) Disconnect() {
	h.b.game.Disconnect()
	// Chat follows the game server, except across a server change.
	if h.b.ctrl.State() != session.StateChangeMap {
		h.b.chat.Disconnect()
	}
}

func (h *gameHandler) ChangeMap(name string) error {
	if name == "" {
		// The map arrives after the connect response.
		return nil
	}
	w := h.b.sess.World
	if w.Map != name {
		w.ChangeMap(name)
	}
	x, y := h.pendingX, h.pendingY
	if p, ok := w.Player(); ok {
		x, y = p.X, p.Y
	}
	event.Emit(h.b.bus, event.MapChanged{Map: name, X: x, Y: y})
	return h.MapLoaded()
}

// MapLoaded has no message here; the game server does not wait for the
// client.
func (h *gameHandler) MapLoaded() error { return nil }

// Walk sends the destination in pixels, at the centre of the tile.
func (h *gameHandler) Walk(x, y uint16, _ uint8) error {
	w := h.b.codec.NewWriter(pgmsgWalk)
	w.WriteUint16(x*tileSize + tileSize/2)
	w.WriteUint16(y*tileSize + tileSize/2)
	return h.b.send(h.b.game, w)
}

func (h *gameHandler) Quit() error {
	w := h.b.codec.NewWriter(pgmsgDisconnect)
	w.WriteUint8(0)
	return h.b.send(h.b.game, w)
}

// Ping is a no-op: the datagram layer keeps the link alive.
func (h *gameHandler) Ping(uint32) error { return nil }

func stripExtension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > strings.LastIndexByte(name, '/') {
		return name[:i]
	}
	return name
}
