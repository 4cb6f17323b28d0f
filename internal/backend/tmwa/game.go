package tmwa

import (
	"fmt"
	"strings"

	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"github.com/manago/client/internal/world"
	"go.uber.org/zap"
)

type gameHandler struct {
	b *Backend
	// charID is the selected character; the map server knows the player
	// by account id once connected.
	charID int32
}

func (h *gameHandler) Handles() []uint16 {
	return []uint16{
		smsgMapLoginSuccess,
		smsgServerPing,
		smsgWhoAnswer,
		smsgCharSwitchResponse,
		smsgMapQuitResponse,
		smsgChangeMapServer,
	}
}

func (h *gameHandler) Handle(r *packet.Reader) {
	sess := h.b.sess
	switch r.ID() {
	case smsgMapLoginSuccess:
		r.Skip(4) // server tick
		x, y, dir := r.ReadCoordinates()
		r.Skip(2)
		h.b.log.Info("進入地圖", zap.String("map", sess.World.Map), zap.Uint16("x", x), zap.Uint16("y", y))
		h.placePlayer(x, y, dir)
		h.b.ctrl.SetState(session.StateGame)

	case smsgServerPing:
		// ignored

	case smsgWhoAnswer:
		h.b.notice(fmt.Sprintf("Online users: %d", r.ReadInt32()))

	case smsgCharSwitchResponse:
		if r.ReadUint8() != 0 {
			sess.Token.Arm()
			h.b.ctrl.SetState(session.StateSwitchCharacter)
		}

	case smsgMapQuitResponse:
		if r.ReadUint8() != 0 {
			h.b.notice("Request to quit denied!")
		}
		// The world is already left; a denied quit still ends the session.
		if h.b.ctrl.State() == session.StateLogoutAttempt {
			h.b.ctrl.SetState(session.StateExit)
		}

	case smsgChangeMapServer:
		mapName := stripExtension(r.ReadString(16))
		x, y := r.ReadUint16(), r.ReadUint16()
		host := ipToString(r.ReadUint32())
		port := r.ReadUint16()
		if sess.Server.PersistentIP {
			host = sess.Server.Host
		}
		sess.GameServer = session.Endpoint{Host: host, Port: port}
		sess.World.ChangeMap(mapName)
		sess.World.MoveTo(sess.World.PlayerID, x, y)
		sess.Token.Arm()
		h.b.log.Info("切換地圖伺服器", zap.String("map", mapName), zap.Stringer("addr", sess.GameServer))
		h.b.disconnect(hopMap)
		h.b.ctrl.SetState(session.StateChangeMap)
	}
}

func (h *gameHandler) placePlayer(x, y uint16, dir uint8) {
	w := h.b.sess.World
	p := world.Being{ID: w.PlayerID, Type: world.BeingPlayer, X: x, Y: y, DestX: x, DestY: y, Dir: dir}
	if c, ok := h.b.sess.SelectedCharacter(); ok {
		p.Name = c.Name
		p.Job = c.Job
		p.Gender = uint8(c.Gender)
	}
	if cur, ok := w.Player(); ok && p.Name == "" {
		p.Name = cur.Name
	}
	w.Upsert(p)
}

// Connect logs in to the map server announced by the char server, or by
// the previous map server on a map server hop.
func (h *gameHandler) Connect() error {
	tok, err := h.b.sess.Token.Consume()
	if err != nil {
		return err
	}
	if h.b.ctrl.State() == session.StateConnectGame {
		c, ok := h.b.sess.SelectedCharacter()
		if !ok {
			return fmt.Errorf("no character selected")
		}
		h.charID = c.ID
	}
	h.b.sess.World.PlayerID = tok.AccountID

	ep := h.b.sess.GameServer
	if err := h.b.connect(hopMap, ep.Host, ep.Port); err != nil {
		return err
	}
	w := h.b.codec.NewWriter(cmsgMapServerConnect)
	w.WriteInt32(tok.AccountID)
	w.WriteInt32(h.charID)
	w.WriteInt32(tok.SessionID1)
	w.WriteInt32(tok.SessionID2)
	w.WriteUint8(uint8(tok.Gender))
	if err := h.b.send(hopMap, w); err != nil {
		return err
	}
	h.b.conn.Skip(4)
	return nil
}

func (h *gameHandler) IsConnected() bool {
	return h.b.hop == hopMap && h.b.conn.IsConnected()
}

func (h *gameHandler) Disconnect() { h.b.disconnect(hopMap) }

// ChangeMap moves the world to name, keeping the player, and tells the
// server the map is loaded.
func (h *gameHandler) ChangeMap(name string) error {
	w := h.b.sess.World
	if w.Map != name {
		w.ChangeMap(name)
	}
	var x, y uint16
	if p, ok := w.Player(); ok {
		x, y = p.X, p.Y
	}
	event.Emit(h.b.bus, event.MapChanged{Map: name, X: x, Y: y})
	return h.MapLoaded()
}

func (h *gameHandler) MapLoaded() error {
	return h.b.send(hopMap, h.b.codec.NewWriter(cmsgMapLoaded))
}

func (h *gameHandler) Walk(x, y uint16, dir uint8) error {
	w := h.b.codec.NewWriter(cmsgPlayerChangeDest)
	w.WriteCoordinates(x, y, dir)
	return h.b.send(hopMap, w)
}

func (h *gameHandler) Quit() error {
	return h.b.send(hopMap, h.b.codec.NewWriter(cmsgClientQuit))
}

func (h *gameHandler) Ping(tick uint32) error {
	w := h.b.codec.NewWriter(cmsgMapPing)
	w.WriteUint32(tick)
	return h.b.send(hopMap, w)
}

// stripExtension turns "009-1.gat" into "009-1".
func stripExtension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
