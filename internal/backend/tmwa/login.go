package tmwa

import (
	"fmt"

	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"go.uber.org/zap"
)

var loginErrors = map[uint8]string{
	0:  "Unregistered ID.",
	1:  "Wrong password.",
	2:  "Account expired.",
	3:  "Rejected from server.",
	4:  "You have been permanently banned from the game. Please contact the GM team.",
	5:  "Client too old.",
	7:  "Server overpopulated.",
	9:  "This user name is already taken.",
	99: "Username permanently erased.",
}

var passwordErrors = map[uint8]string{
	0: "Account was not found. Please re-login.",
	2: "Old password incorrect.",
	3: "New password too short.",
}

type loginHandler struct {
	b *Backend
}

func (h *loginHandler) Handles() []uint16 {
	return []uint16{smsgServerVersion, smsgLoginData, smsgLoginError, smsgUpdateHost, smsgCharPasswordResult}
}

func (h *loginHandler) Handle(r *packet.Reader) {
	switch r.ID() {
	case smsgServerVersion:
		h.handleVersion(r)
	case smsgLoginData:
		h.handleLoginData(r)
	case smsgLoginError:
		h.handleLoginError(r)
	case smsgUpdateHost:
		n := int(r.ReadUint16()) - packet.HeaderSize
		h.b.sess.UpdateHost = r.ReadString(n)
		h.b.log.Info("收到更新伺服器位址", zap.String("host", h.b.sess.UpdateHost))
	case smsgCharPasswordResult:
		code := r.ReadUint8()
		if code == 1 {
			h.b.ctrl.SetState(session.StateChangePasswordSuccess)
			return
		}
		msg, ok := passwordErrors[code]
		if !ok {
			msg = "Unknown error."
		}
		h.b.ctrl.FailRecoverable(session.StateAccountChangeError, msg)
	}
}

func (h *loginHandler) handleVersion(r *packet.Reader) {
	b1, b2, b3 := r.ReadUint8(), r.ReadUint8(), r.ReadUint8()
	r.Skip(1)
	options := r.ReadUint32()

	var version uint32
	if b1 != 255 && b1 >= 0x0d {
		version = uint32(b1)<<16 | uint32(b2)<<8 | uint32(b3)
	}
	h.b.registration = options&flagRegistration != 0
	h.b.versionOK = true
	h.b.log.Info("伺服器版本",
		zap.String("version", fmt.Sprintf("x%06x", version)),
		zap.Bool("registration", h.b.registration),
	)
}

func (h *loginHandler) handleLoginData(r *packet.Reader) {
	r.Skip(2) // length
	worlds := (r.Len() - 47) / 32

	tok := &h.b.sess.Token
	tok.SessionID1 = r.ReadInt32()
	tok.AccountID = r.ReadInt32()
	tok.SessionID2 = r.ReadInt32()
	r.Skip(30)
	tok.Gender = session.Gender(r.ReadUint8())

	list := make([]session.WorldInfo, 0, worlds)
	for i := 0; i < worlds; i++ {
		ip := r.ReadUint32()
		port := r.ReadUint16()
		w := session.WorldInfo{
			Endpoint: session.Endpoint{Host: ipToString(ip), Port: port},
			Name:     r.ReadString(20),
			Online:   int(r.ReadUint16()),
		}
		w.Maintenance = r.ReadUint16() != 0
		w.New = r.ReadUint16() != 0
		h.b.log.Info("世界伺服器", zap.String("name", w.Name), zap.Stringer("addr", w.Endpoint))
		list = append(list, w)
	}
	h.b.sess.Worlds = list
	h.b.ctrl.SetState(session.StateWorldSelect)
}

func (h *loginHandler) handleLoginError(r *packet.Reader) {
	code := r.ReadUint8()
	h.b.log.Info("登入錯誤", zap.Uint8("code", code))
	msg, ok := loginErrors[code]
	switch {
	case code == 6:
		msg = fmt.Sprintf("You have been temporarily banned from the game until %s.\nPlease contact the GM team via the forums.", r.ReadString(20))
	case !ok:
		msg = "Unknown error."
	}
	h.b.ctrl.FailRecoverable(session.StateLoginError, msg)
}

func (h *loginHandler) Connect(srv session.ServerDescriptor) error {
	h.b.versionOK = false
	if err := h.b.connect(hopLogin, srv.Host, srv.Port); err != nil {
		return err
	}
	return h.b.send(hopLogin, h.b.codec.NewWriter(cmsgServerVersion))
}

// IsConnected is true once the server answered the version request.
func (h *loginHandler) IsConnected() bool {
	return h.b.hop == hopLogin && h.b.versionOK && h.b.conn.IsConnected()
}

func (h *loginHandler) Disconnect() {
	h.b.disconnect(hopLogin)
	h.b.versionOK = false
}

func (h *loginHandler) Login(c session.Credentials) error {
	return h.sendLoginRegister(c.Username, c.Password)
}

// Register logs in with a gender suffix, which the server takes as a
// request to create the account.
func (h *loginHandler) Register(c session.Credentials) error {
	suffix := "_M"
	if c.Gender == session.GenderFemale {
		suffix = "_F"
	}
	return h.sendLoginRegister(c.Username+suffix, c.Password)
}

func (h *loginHandler) sendLoginRegister(username, password string) error {
	w := h.b.codec.NewWriter(cmsgLoginRegister)
	w.WriteInt32(clientVersion)
	w.WriteString(username, 24)
	w.WriteString(password, 24)
	w.WriteUint8(loginFlags)
	return h.b.send(hopLogin, w)
}

// ChangePassword goes out on whatever server the connection points at; the
// login and char servers both accept it.
func (h *loginHandler) ChangePassword(_, oldPassword, newPassword string) error {
	w := h.b.codec.NewWriter(cmsgCharPasswordChange)
	w.WriteString(oldPassword, 24)
	w.WriteString(newPassword, 24)
	to := h.b.hop
	if to == hopNone {
		to = hopChar
	}
	return h.b.send(to, w)
}

func (h *loginHandler) ChooseWorld(index int) error {
	worlds := h.b.sess.Worlds
	if index < 0 || index >= len(worlds) {
		return fmt.Errorf("world %d out of range (%d worlds)", index, len(worlds))
	}
	ep := worlds[index].Endpoint
	if h.b.sess.Server.PersistentIP {
		ep.Host = h.b.sess.Server.Host
	}
	h.b.sess.CharServer = ep
	h.b.sess.Token.Arm()
	return nil
}

// Logout has no message in this protocol; dropping the connection is the
// logout.
func (h *loginHandler) Logout() error {
	return nil
}

func (h *loginHandler) RegistrationEnabled() bool { return h.b.registration }
