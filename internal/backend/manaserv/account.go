package manaserv

import (
	"errors"
	"fmt"

	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"go.uber.org/zap"
)

// errNoWorlds is returned by ChooseWorld: the account server hands out game
// servers per character, not per world.
var errNoWorlds = errors.New("server has no world list")

type loginHandler struct {
	b *Backend
}

func (h *loginHandler) Handles() []uint16 {
	return []uint16{
		apmsgLoginResponse,
		apmsgRegisterResponse,
		apmsgReconnectResponse,
		apmsgPasswordChangeResponse,
		apmsgLogoutResponse,
	}
}

func (h *loginHandler) Handle(r *packet.Reader) {
	code := r.ReadUint8()
	switch r.ID() {
	case apmsgLoginResponse:
		if code != errOK {
			h.b.ctrl.FailRecoverable(session.StateLoginError, loginError(code))
			return
		}
		h.loggedIn(r)

	case apmsgRegisterResponse:
		if code != errOK {
			h.b.ctrl.FailRecoverable(session.StateLoginError, registerError(code))
			return
		}
		h.loggedIn(r)

	case apmsgReconnectResponse:
		switch code {
		case errOK:
			h.b.ctrl.SetState(session.StateCharSelect)
		case errInvalidArgument:
			h.b.ctrl.Fail("Wrong magic_token.")
		case errFailure:
			h.b.ctrl.Fail("Already logged in.")
		case errServerFull:
			h.b.ctrl.Fail("Server is full.")
		default:
			h.b.ctrl.Fail("Unknown error.")
		}

	case apmsgPasswordChangeResponse:
		var msg string
		switch code {
		case errOK:
			h.b.ctrl.SetState(session.StateChangePasswordSuccess)
			return
		case errInvalidArgument:
			msg = "New password incorrect."
		case errFailure:
			msg = "Old password incorrect."
		case errNoLogin:
			msg = "Account not connected. Please login first."
		default:
			msg = "Unknown error."
		}
		h.b.ctrl.FailRecoverable(session.StateAccountChangeError, msg)

	case apmsgLogoutResponse:
		if code != errOK {
			h.b.log.Warn("帳號伺服器登出失敗", zap.Uint8("code", code))
		}
	}
}

// loggedIn finishes a login or registration. An update host may follow the
// error code.
func (h *loginHandler) loggedIn(r *packet.Reader) {
	if r.Remaining() > 0 {
		h.b.sess.UpdateHost = r.ReadLenString()
	}
	h.b.sess.Worlds = nil
	h.b.sess.Characters = nil
	h.b.ctrl.SetState(session.StateWorldSelect)
}

func loginError(code uint8) string {
	switch code {
	case loginInvalidVersion:
		return "Client version is too old."
	case errInvalidArgument:
		return "Wrong username or password."
	case errFailure:
		return "Already logged in."
	case errServerFull:
		return "Server is full."
	case loginInvalidTime:
		return "Login attempt too soon after previous attempt."
	case loginBanned:
		return "Your account is banned."
	default:
		return "Unknown error."
	}
}

func registerError(code uint8) string {
	switch code {
	case registerInvalidVersion:
		return "Client version is too old."
	case errInvalidArgument:
		return "Wrong username, password or email address."
	case registerExistsUsername:
		return "Username already exists."
	case registerExistsEmail:
		return "Email address already exists."
	default:
		return "Unknown error."
	}
}

func (h *loginHandler) Connect(srv session.ServerDescriptor) error {
	return h.b.connect(h.b.account, session.Endpoint{Host: srv.Host, Port: srv.Port})
}

func (h *loginHandler) IsConnected() bool { return h.b.account.IsConnected() }
func (h *loginHandler) Disconnect()       { h.b.account.Disconnect() }

func (h *loginHandler) Login(c session.Credentials) error {
	w := h.b.codec.NewWriter(pamsgLogin)
	w.WriteUint32(clientVersion)
	w.WriteLenString(c.Username)
	w.WriteLenString(passwordDigest(c.Username, c.Password))
	return h.b.send(h.b.account, w)
}

// Register is the one message that carries the clear password; the server
// stores its own digest.
func (h *loginHandler) Register(c session.Credentials) error {
	w := h.b.codec.NewWriter(pamsgRegister)
	w.WriteUint32(clientVersion)
	w.WriteLenString(c.Username)
	w.WriteLenString(c.Password)
	w.WriteLenString(c.Email)
	return h.b.send(h.b.account, w)
}

func (h *loginHandler) ChangePassword(username, oldPassword, newPassword string) error {
	w := h.b.codec.NewWriter(pamsgPasswordChange)
	w.WriteLenString(passwordDigest(username, oldPassword))
	w.WriteLenString(passwordDigest(username, newPassword))
	return h.b.send(h.b.account, w)
}

func (h *loginHandler) ChooseWorld(index int) error {
	return fmt.Errorf("world %d: %w", index, errNoWorlds)
}

func (h *loginHandler) Logout() error {
	return h.b.send(h.b.account, h.b.codec.NewWriter(pamsgLogout))
}

func (h *loginHandler) RegistrationEnabled() bool { return true }

type charHandler struct {
	b        *Backend
	deleting int
}

func (h *charHandler) Handles() []uint16 {
	return []uint16{apmsgCharInfo, apmsgCharCreateResponse, apmsgCharDeleteResponse, apmsgCharSelectResponse}
}

func (h *charHandler) Handle(r *packet.Reader) {
	sess := h.b.sess
	switch r.ID() {
	case apmsgCharInfo:
		c := session.Character{Slot: int(r.ReadUint8())}
		c.Name = r.ReadLenString()
		c.Gender = session.Gender(r.ReadUint8())
		c.HairStyle = uint16(r.ReadUint8())
		c.HairColor = uint16(r.ReadUint8())
		c.Level = int(r.ReadUint16())
		r.Skip(4) // character and correction points
		c.Money = r.ReadInt32()
		for i := range c.Stats {
			c.Stats[i] = r.ReadUint8()
		}
		h.put(c)

	case apmsgCharCreateResponse:
		if code := r.ReadUint8(); code != errOK {
			h.b.notice(createError(code))
		}

	case apmsgCharDeleteResponse:
		code := r.ReadUint8()
		slot := h.deleting
		h.deleting = -1
		switch code {
		case errOK:
			h.remove(slot)
			h.b.notice("Player deleted.")
		case errNoLogin:
			h.b.notice("Not logged in.")
		case errInvalidArgument:
			h.b.notice("Selection out of range.")
		default:
			h.b.notice(fmt.Sprintf("Unknown error (%d).", code))
		}

	case apmsgCharSelectResponse:
		code := r.ReadUint8()
		if code != errOK {
			sess.Characters = nil
			if code == errFailure {
				h.b.ctrl.Fail("No gameservers are available.")
			} else {
				h.b.ctrl.Fail(errorText(code))
			}
			return
		}
		sess.Token.Secret = string(r.ReadBytes(tokenSize))
		game := session.Endpoint{Host: r.ReadLenString(), Port: r.ReadUint16()}
		chat := session.Endpoint{Host: r.ReadLenString(), Port: r.ReadUint16()}
		if sess.Server.PersistentIP {
			game.Host, chat.Host = sess.Server.Host, sess.Server.Host
		}
		sess.GameServer, sess.ChatServer = game, chat
		sess.Token.Arm()
		h.b.log.Info("前往遊戲伺服器", zap.Stringer("game", game), zap.Stringer("chat", chat))
		h.b.ctrl.SetState(session.StateConnectGame)
	}
}

func createError(code uint8) string {
	switch code {
	case errNoLogin:
		return "Not logged in."
	case createTooManyCharacters:
		return "No empty slot."
	case errInvalidArgument:
		return "Invalid name."
	case createExistsName:
		return "Character's name already exists."
	case createInvalidHairStyle:
		return "Invalid hairstyle."
	case createInvalidHairColor:
		return "Invalid hair color."
	case createInvalidGender:
		return "Invalid gender."
	case createAttributesTooHigh:
		return "Character's stats are too high."
	case createAttributesTooLow:
		return "Character's stats are too low."
	case createAttributesZero:
		return "One stat is zero."
	default:
		return "Unknown error."
	}
}

// put adds or replaces the character in c's slot.
func (h *charHandler) put(c session.Character) {
	sess := h.b.sess
	replaced := false
	for i := range sess.Characters {
		if sess.Characters[i].Slot == c.Slot {
			sess.Characters[i] = c
			replaced = true
		}
	}
	if !replaced {
		sess.Characters = append(sess.Characters, c)
	}
	event.Emit(h.b.bus, event.CharactersChanged{Count: len(sess.Characters)})
}

func (h *charHandler) remove(slot int) {
	chars := h.b.sess.Characters
	for i, c := range chars {
		if c.Slot == slot {
			h.b.sess.Characters = append(chars[:i], chars[i+1:]...)
			break
		}
	}
	event.Emit(h.b.bus, event.CharactersChanged{Count: len(h.b.sess.Characters)})
}

// RequestCharacters goes straight to selection after a login, since the
// account server pushes the characters with the login response. Coming
// back from the game it reconnects with the token the game server gave.
func (h *charHandler) RequestCharacters() error {
	if h.b.account.IsConnected() {
		h.b.ctrl.SetState(session.StateCharSelect)
		return nil
	}
	tok, err := h.b.sess.Token.Consume()
	if err != nil {
		return err
	}
	if tok.Secret == "" {
		return session.ErrNoToken
	}
	srv := h.b.sess.Server
	if err := h.b.connect(h.b.account, session.Endpoint{Host: srv.Host, Port: srv.Port}); err != nil {
		return err
	}
	h.b.sess.Characters = nil
	w := h.b.codec.NewWriter(pamsgReconnect)
	w.WriteBytes(tokenBytes(tok.Secret))
	return h.b.send(h.b.account, w)
}

func (h *charHandler) ChooseCharacter(slot int) error {
	w := h.b.codec.NewWriter(pamsgCharSelect)
	w.WriteUint8(uint8(slot))
	return h.b.send(h.b.account, w)
}

func (h *charHandler) NewCharacter(c session.Character) error {
	w := h.b.codec.NewWriter(pamsgCharCreate)
	w.WriteLenString(c.Name)
	w.WriteUint8(uint8(c.HairStyle))
	w.WriteUint8(uint8(c.HairColor))
	w.WriteUint8(uint8(c.Gender))
	for _, v := range c.Stats {
		w.WriteUint16(uint16(v))
	}
	return h.b.send(h.b.account, w)
}

func (h *charHandler) DeleteCharacter(slot int) error {
	w := h.b.codec.NewWriter(pamsgCharDelete)
	w.WriteUint8(uint8(slot))
	if err := h.b.send(h.b.account, w); err != nil {
		return err
	}
	h.deleting = slot
	return nil
}

// SwitchCharacter leaves the game server asking for a reconnect token.
func (h *charHandler) SwitchCharacter() error {
	w := h.b.codec.NewWriter(pgmsgDisconnect)
	w.WriteUint8(1)
	return h.b.send(h.b.game, w)
}

// tokenBytes pads or cuts a token to its wire size.
func tokenBytes(secret string) []byte {
	b := make([]byte, tokenSize)
	copy(b, secret)
	return b
}
