package tmwa

import (
	"fmt"

	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"go.uber.org/zap"
)

type charHandler struct {
	b *Backend
	// deleting is the slot of an outstanding delete request, -1 if none.
	deleting int
}

func (h *charHandler) Handles() []uint16 {
	return []uint16{
		smsgCharLogin,
		smsgCharLoginError,
		smsgCharCreateSucceeded,
		smsgCharCreateFailed,
		smsgCharDeleteSucceeded,
		smsgCharDeleteFailed,
		smsgCharMapInfo,
	}
}

func (h *charHandler) Handle(r *packet.Reader) {
	sess := h.b.sess
	switch r.ID() {
	case smsgCharLogin:
		r.Skip(2)  // length
		r.Skip(20) // unused
		count := (r.Len() - 24) / charInfoSize
		sess.Characters = sess.Characters[:0]
		for i := 0; i < count; i++ {
			c := h.readCharacter(r)
			h.b.log.Debug("角色", zap.String("name", c.Name), zap.Int("slot", c.Slot))
			sess.Characters = append(sess.Characters, c)
		}
		h.b.ctrl.SetState(session.StateCharSelect)

	case smsgCharLoginError:
		var msg string
		switch r.ReadUint8() {
		case 0:
			msg = "Access denied. Most likely, there are too many players on this server."
		case 1:
			msg = "Cannot use this ID."
		default:
			msg = "Unknown char-server failure."
		}
		h.b.ctrl.FailRecoverable(session.StateLoginError, msg)

	case smsgCharCreateSucceeded:
		c := h.readCharacter(r)
		sess.Characters = append(sess.Characters, c)
		h.b.log.Info("角色建立完成", zap.String("name", c.Name), zap.Int("slot", c.Slot))
		event.Emit(h.b.bus, event.CharactersChanged{Count: len(sess.Characters)})

	case smsgCharCreateFailed:
		h.b.notice("Failed to create character. Most likely the name is already taken.")

	case smsgCharDeleteSucceeded:
		if h.deleting >= 0 {
			h.remove(h.deleting)
		}
		h.deleting = -1
		event.Emit(h.b.bus, event.CharactersChanged{Count: len(sess.Characters)})
		h.b.notice("Character deleted.")

	case smsgCharDeleteFailed:
		h.deleting = -1
		h.b.notice("Failed to delete character.")

	case smsgCharMapInfo:
		r.Skip(4) // char id, same as the selected one
		mapName := stripExtension(r.ReadString(16))
		host := ipToString(r.ReadUint32())
		port := r.ReadUint16()
		if sess.Server.PersistentIP {
			host = sess.Server.Host
		}
		sess.GameServer = session.Endpoint{Host: host, Port: port}
		sess.World.Map = mapName
		sess.Token.Arm()
		h.b.log.Info("前往地圖伺服器", zap.String("map", mapName), zap.Stringer("addr", sess.GameServer))
		h.b.disconnect(hopChar)
		h.b.ctrl.SetState(session.StateConnectGame)
	}
}

// readCharacter reads one fixed-size character record.
func (h *charHandler) readCharacter(r *packet.Reader) session.Character {
	c := session.Character{Gender: h.b.sess.Token.Gender}
	c.ID = r.ReadInt32()
	r.Skip(4) // exp
	c.Money = r.ReadInt32()
	// Job exp and level, four equipment sprites, option, karma, manner,
	// two unknown bytes, hp and mp, speed.
	r.Skip(8 + 8 + 12 + 2 + 8 + 2)
	c.Job = r.ReadUint16()
	c.HairStyle = r.ReadUint16()
	r.Skip(2) // weapon
	c.Level = int(r.ReadUint16())
	// Skill points and the head bottom, shield, head top and head mid sprites.
	r.Skip(2 + 8)
	c.HairColor = r.ReadUint16()
	r.Skip(2) // misc2
	c.Name = r.ReadString(24)
	for i := range c.Stats {
		c.Stats[i] = r.ReadUint8()
	}
	c.Slot = int(r.ReadUint8())
	r.Skip(1)
	return c
}

func (h *charHandler) remove(slot int) {
	chars := h.b.sess.Characters
	for i, c := range chars {
		if c.Slot == slot {
			h.b.sess.Characters = append(chars[:i], chars[i+1:]...)
			return
		}
	}
}

// RequestCharacters connects to the char server chosen at world selection.
// The list arrives with SMSG_CHAR_LOGIN.
func (h *charHandler) RequestCharacters() error {
	tok, err := h.b.sess.Token.Consume()
	if err != nil {
		return err
	}
	ep := h.b.sess.CharServer
	if err := h.b.connect(hopChar, ep.Host, ep.Port); err != nil {
		return err
	}
	h.deleting = -1
	w := h.b.codec.NewWriter(cmsgCharServerConnect)
	w.WriteInt32(tok.AccountID)
	w.WriteInt32(tok.SessionID1)
	w.WriteInt32(tok.SessionID2)
	w.WriteInt16(protocolVersion)
	w.WriteUint8(uint8(tok.Gender))
	if err := h.b.send(hopChar, w); err != nil {
		return err
	}
	// The server echoes the account id before its real answer.
	h.b.conn.Skip(4)
	return nil
}

func (h *charHandler) ChooseCharacter(slot int) error {
	if _, ok := h.find(slot); !ok {
		return fmt.Errorf("no character in slot %d", slot)
	}
	w := h.b.codec.NewWriter(cmsgCharSelect)
	w.WriteUint8(uint8(slot))
	return h.b.send(hopChar, w)
}

func (h *charHandler) NewCharacter(c session.Character) error {
	w := h.b.codec.NewWriter(cmsgCharCreate)
	w.WriteString(c.Name, 24)
	for _, v := range c.Stats {
		w.WriteUint8(v)
	}
	w.WriteUint8(uint8(c.Slot))
	w.WriteUint16(c.HairColor)
	w.WriteUint16(c.HairStyle)
	return h.b.send(hopChar, w)
}

func (h *charHandler) DeleteCharacter(slot int) error {
	c, ok := h.find(slot)
	if !ok {
		return fmt.Errorf("no character in slot %d", slot)
	}
	w := h.b.codec.NewWriter(cmsgCharDelete)
	w.WriteInt32(c.ID)
	w.WriteString("a@a.com", 40)
	if err := h.b.send(hopChar, w); err != nil {
		return err
	}
	h.deleting = slot
	return nil
}

// SwitchCharacter asks the map server to let us back to character
// selection. It is answered by SMSG_CHAR_SWITCH_RESPONSE.
func (h *charHandler) SwitchCharacter() error {
	w := h.b.codec.NewWriter(cmsgPlayerReboot)
	w.WriteUint8(1)
	return h.b.send(hopMap, w)
}

func (h *charHandler) find(slot int) (session.Character, bool) {
	for _, c := range h.b.sess.Characters {
		if c.Slot == slot {
			return c, true
		}
	}
	return session.Character{}, false
}
