package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/metrics"
	"go.uber.org/zap"
)

// ErrInvalidAction is returned by a user action that does not apply to the
// current state.
var ErrInvalidAction = errors.New("action not valid in current state")

// maxChainedTransitions bounds entry actions that immediately move on.
const maxChainedTransitions = 16

// BackendFactory builds the backend for a protocol kind.
type BackendFactory func(kind ProtocolKind) (Backend, error)

// Options are the initial inputs from configuration.
type Options struct {
	Servers []ServerDescriptor
	// AutoConnect picks the first server without asking.
	AutoConnect bool
	// Character is selected automatically when the list contains it.
	Character      string
	SkipUpdate     bool
	RequestTimeout time.Duration
	// Now is the clock for request deadlines; defaults to time.Now.
	Now func() time.Time
}

// Machine drives the session from server choice to gameplay and back. All
// methods run on the main loop.
type Machine struct {
	sess       *Session
	ui         UI
	assets     Assets
	newBackend BackendFactory
	backend    Backend
	bus        *event.Bus
	opts       Options

	state    State
	old      State
	deadline time.Time
	autoChar bool
	done     bool

	log *zap.Logger
}

func NewMachine(sess *Session, ui UI, assets Assets, factory BackendFactory, bus *event.Bus, opts Options, log *zap.Logger) *Machine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{
		sess:       sess,
		ui:         ui,
		assets:     assets,
		newBackend: factory,
		bus:        bus,
		opts:       opts,
		state:      StateStart,
		old:        StateStart,
		autoChar:   opts.Character != "",
		log:        log.With(zap.String("component", "session")),
	}
}

// Start leaves StateStart. The transition runs on the next Update.
func (m *Machine) Start() {
	if m.state == StateStart {
		m.state = StateChooseServer
	}
}

func (m *Machine) State() State    { return m.state }
func (m *Machine) Previous() State { return m.old }
func (m *Machine) Session() *Session {
	return m.sess
}

// Backend returns the active backend, or nil before a server is chosen.
func (m *Machine) Backend() Backend { return m.backend }

// Done reports whether the machine reached Exit.
func (m *Machine) Done() bool { return m.done }

// SetState requests a transition, performed by the next Update.
func (m *Machine) SetState(s State) {
	if m.done {
		return
	}
	m.state = s
}

func (m *Machine) Fail(msg string) {
	m.sess.ErrorMessage = msg
	m.SetState(StateError)
}

func (m *Machine) FailRecoverable(next State, msg string) {
	m.sess.ErrorMessage = msg
	m.SetState(next)
}

// Update runs once per tick: poll connections and deadlines, then perform
// pending transitions.
func (m *Machine) Update() {
	if m.done {
		return
	}
	m.poll()
	for i := 0; m.state != m.old; i++ {
		if i == maxChainedTransitions {
			m.log.Error("狀態轉換過多，延後到下一個 tick", zap.Stringer("state", m.state))
			return
		}
		old := m.old
		m.old = m.state
		m.changed(old, m.state)
	}
}

func (m *Machine) poll() {
	if m.backend == nil {
		return
	}
	if m.state == StateConnectServer && m.backend.Login().IsConnected() {
		m.SetState(StateLogin)
		return
	}
	if m.state.needsLink() {
		if msg := m.backend.LinkError(); msg != "" {
			m.Fail("Connection to server lost: " + msg)
			return
		}
	}
	if !m.deadline.IsZero() && m.opts.Now().After(m.deadline) {
		m.deadline = time.Time{}
		if m.state == StateLogoutAttempt {
			m.log.Warn("登出無回應，直接結束")
			m.SetState(StateExit)
			return
		}
		m.Fail(fmt.Sprintf("No reply from server within %s (%s).", m.opts.RequestTimeout, m.state))
	}
}

// expect starts the request deadline.
func (m *Machine) expect() {
	if m.opts.RequestTimeout > 0 {
		m.deadline = m.opts.Now().Add(m.opts.RequestTimeout)
	}
}

func (m *Machine) changed(old, cur State) {
	m.log.Info("狀態變更", zap.Stringer("old", old), zap.Stringer("new", cur))
	metrics.StateChanges.WithLabelValues(cur.String()).Inc()
	m.ui.StateChanged(old, cur)
	event.Emit(m.bus, event.StateChanged{Old: old.String(), New: cur.String()})
	m.deadline = time.Time{}

	if old == StateGame && m.backend != nil {
		m.backend.LeaveWorld()
		// A map server hop keeps the player; the handler already moved the
		// world to the new map.
		if cur != StateChangeMap {
			m.sess.World.Reset()
		}
		// The quit request still has to go out on this connection.
		if cur != StateLogoutAttempt {
			m.backend.Game().Disconnect()
		}
	}
	m.enter(cur)
}

func (m *Machine) enter(s State) {
	switch s {
	case StateChooseServer:
		m.dropBackend()
		if m.opts.AutoConnect && len(m.opts.Servers) > 0 {
			m.opts.AutoConnect = false
			m.sess.Server = m.opts.Servers[0]
			m.SetState(StateConnectServer)
			return
		}
		m.ui.RequestServer(m.opts.Servers)

	case StateConnectServer:
		m.connectServer()

	case StateLogin:
		if !m.backend.Login().IsConnected() {
			m.SetState(StateConnectServer)
			return
		}
		c := m.sess.Credentials
		if c.Username != "" && c.Password != "" {
			m.SetState(StateLoginAttempt)
			return
		}
		m.ui.RequestLogin(c, false)

	case StateLoginAttempt:
		err := m.backend.Login().Login(m.sess.Credentials)
		m.sess.Credentials.ClearPassword()
		if err != nil {
			m.Fail(fmt.Sprintf("Login failed: %v", err))
			return
		}
		m.ui.ShowConnecting("Logging in...")
		m.expect()

	case StateWorldSelect:
		switch len(m.sess.Worlds) {
		case 0:
			m.SetState(StateUpdate)
		case 1:
			if err := m.SelectWorld(0); err != nil {
				m.Fail(fmt.Sprintf("World selection failed: %v", err))
			}
		default:
			m.ui.RequestWorld(m.sess.Worlds)
		}

	case StateUpdate:
		if !m.opts.SkipUpdate && m.sess.UpdateHost != "" {
			if err := m.assets.Update(m.sess.UpdateHost); err != nil {
				m.log.Warn("更新失敗，繼續使用本地資料", zap.String("host", m.sess.UpdateHost), zap.Error(err))
				m.ui.ShowNotice("Update failed: " + err.Error())
			}
		}
		m.SetState(StateLoadData)

	case StateLoadData:
		if err := m.assets.LoadData(); err != nil {
			m.Fail(fmt.Sprintf("Loading game data failed: %v", err))
			return
		}
		m.SetState(StateGetCharacters)

	case StateGetCharacters:
		if err := m.backend.Char().RequestCharacters(); err != nil {
			m.Fail(fmt.Sprintf("Requesting characters failed: %v", err))
			return
		}
		m.ui.ShowConnecting("Requesting characters...")
		m.expect()

	case StateCharSelect:
		if m.autoChar {
			m.autoChar = false
			if c, ok := m.sess.CharacterByName(m.opts.Character); ok {
				if err := m.SelectCharacter(c.Slot); err != nil {
					m.Fail(fmt.Sprintf("Selecting character failed: %v", err))
				}
				return
			}
			m.log.Warn("找不到預設角色", zap.String("name", m.opts.Character))
		}
		m.ui.RequestCharacter(m.sess.Characters)

	case StateConnectGame, StateChangeMap:
		if err := m.backend.Game().Connect(); err != nil {
			m.Fail(fmt.Sprintf("Connecting to game server failed: %v", err))
			return
		}
		m.ui.ShowConnecting("Connecting to the game server...")
		m.expect()

	case StateGame:
		m.backend.EnterWorld()
		m.sess.Credentials.Clear()
		if err := m.backend.Game().ChangeMap(m.sess.World.Map); err != nil {
			m.Fail(fmt.Sprintf("Entering map failed: %v", err))
		}

	case StateLoginError:
		m.ui.ShowError(m.errorMessage())

	case StateAccountChangeError:
		m.ui.ShowError(m.errorMessage())

	case StateRegisterPrep:
		if !m.backend.Login().RegistrationEnabled() {
			m.FailRecoverable(StateLoginError, "Registration is disabled on this server.")
			return
		}
		m.SetState(StateRegister)

	case StateRegister:
		c := m.sess.Credentials
		if c.Username != "" && c.Password != "" {
			m.SetState(StateRegisterAttempt)
			return
		}
		m.ui.RequestLogin(c, true)

	case StateRegisterAttempt:
		err := m.backend.Login().Register(m.sess.Credentials)
		m.sess.Credentials.ClearPassword()
		if err != nil {
			m.Fail(fmt.Sprintf("Registration failed: %v", err))
			return
		}
		m.ui.ShowConnecting("Registering...")
		m.expect()

	case StateChangePasswordAttempt:
		c := m.sess.Credentials
		err := m.backend.Login().ChangePassword(c.Username, c.Password, c.NewPassword)
		m.sess.Credentials.ClearPassword()
		if err != nil {
			m.FailRecoverable(StateAccountChangeError, fmt.Sprintf("Password change failed: %v", err))
			return
		}
		m.expect()

	case StateChangePasswordSuccess:
		m.ui.ShowNotice("Password changed successfully.")
		m.SetState(StateCharSelect)

	case StateSwitchServer:
		m.dropBackend()
		m.sess.Reset()
		m.SetState(StateChooseServer)

	case StateSwitchLogin:
		if err := m.backend.Login().Logout(); err != nil {
			m.log.Debug("登出請求未送出", zap.Error(err))
		}
		m.backend.Close()
		m.sess.Token.Clear()
		m.sess.Credentials.ClearPassword()
		m.sess.Characters = nil
		m.sess.Selected = -1
		m.SetState(StateConnectServer)

	case StateSwitchCharacter:
		m.backend.Game().Disconnect()
		m.sess.Selected = -1
		m.SetState(StateGetCharacters)

	case StateLogoutAttempt:
		m.expect()

	case StateForceQuit:
		m.SetState(StateExit)

	case StateExit:
		m.dropBackend()
		m.done = true

	case StateError:
		m.ui.ShowError(m.errorMessage())
		if m.backend != nil {
			m.backend.Game().Disconnect()
		}
	}
}

func (m *Machine) errorMessage() string {
	if m.sess.ErrorMessage == "" {
		m.log.Error("進入錯誤狀態但沒有錯誤訊息", zap.Stringer("from", m.old), zap.Stringer("state", m.state))
		m.sess.ErrorMessage = "Unknown error."
	}
	return m.sess.ErrorMessage
}

func (m *Machine) connectServer() {
	srv := m.sess.Server
	if m.backend == nil {
		b, err := m.newBackend(srv.Kind)
		if err != nil {
			m.Fail(fmt.Sprintf("No protocol support for %s: %v", srv, err))
			return
		}
		if b.Kind() != srv.Kind {
			m.log.Error("協定後端不符", zap.Stringer("backend", b.Kind()), zap.Stringer("server", srv.Kind))
			m.Fail(fmt.Sprintf("%v: %s backend for %s server", ErrWrongBackend, b.Kind(), srv.Kind))
			return
		}
		b.Load(m)
		m.backend = b
	}

	login := m.backend.Login()
	if login.IsConnected() {
		m.SetState(StateLogin)
		return
	}
	m.ui.ShowConnecting("Connecting to server...")
	if err := login.Connect(srv); err != nil {
		m.Fail(fmt.Sprintf("Cannot connect to %s: %v", srv, err))
		return
	}
	m.expect()
}

func (m *Machine) dropBackend() {
	if m.backend == nil {
		return
	}
	m.backend.Close()
	m.backend.Unload()
	m.backend = nil
}

func (m *Machine) require(states ...State) error {
	for _, s := range states {
		if m.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidAction, m.state)
}

// SelectServer answers RequestServer.
func (m *Machine) SelectServer(index int) error {
	if err := m.require(StateChooseServer); err != nil {
		return err
	}
	if index < 0 || index >= len(m.opts.Servers) {
		return fmt.Errorf("server %d out of range", index)
	}
	m.sess.Server = m.opts.Servers[index]
	m.SetState(StateConnectServer)
	return nil
}

// SubmitLogin answers RequestLogin, for both login and registration.
func (m *Machine) SubmitLogin(username, password string, remember bool) error {
	if err := m.require(StateLogin, StateRegister); err != nil {
		return err
	}
	c := &m.sess.Credentials
	c.Username, c.Password, c.Remember = username, password, remember
	if m.state == StateRegister {
		m.SetState(StateRegisterAttempt)
	} else {
		m.SetState(StateLoginAttempt)
	}
	return nil
}

// Register switches the login dialog to account registration.
func (m *Machine) Register(gender Gender, email string) error {
	if err := m.require(StateLogin); err != nil {
		return err
	}
	m.sess.Credentials.Gender = gender
	m.sess.Credentials.Email = email
	m.SetState(StateRegisterPrep)
	return nil
}

// SelectWorld answers RequestWorld.
func (m *Machine) SelectWorld(index int) error {
	if err := m.require(StateWorldSelect); err != nil {
		return err
	}
	if err := m.backend.Login().ChooseWorld(index); err != nil {
		return err
	}
	m.SetState(StateUpdate)
	return nil
}

// SelectCharacter answers RequestCharacter. The server's reply moves the
// session on.
func (m *Machine) SelectCharacter(slot int) error {
	if err := m.require(StateCharSelect); err != nil {
		return err
	}
	m.sess.Selected = slot
	if err := m.backend.Char().ChooseCharacter(slot); err != nil {
		return err
	}
	m.ui.ShowConnecting("Entering the game...")
	m.expect()
	return nil
}

func (m *Machine) CreateCharacter(c Character) error {
	if err := m.require(StateCharSelect); err != nil {
		return err
	}
	return m.backend.Char().NewCharacter(c)
}

func (m *Machine) DeleteCharacter(slot int) error {
	if err := m.require(StateCharSelect); err != nil {
		return err
	}
	return m.backend.Char().DeleteCharacter(slot)
}

// ChangePassword starts a password change from character selection.
func (m *Machine) ChangePassword(oldPassword, newPassword string) error {
	if err := m.require(StateCharSelect); err != nil {
		return err
	}
	m.sess.Credentials.Password = oldPassword
	m.sess.Credentials.NewPassword = newPassword
	m.SetState(StateChangePasswordAttempt)
	return nil
}

// SwitchCharacter asks the game server to return to character selection.
func (m *Machine) SwitchCharacter() error {
	if err := m.require(StateGame); err != nil {
		return err
	}
	if err := m.backend.Char().SwitchCharacter(); err != nil {
		return err
	}
	m.expect()
	return nil
}

// SwitchServer returns to server selection from anywhere.
func (m *Machine) SwitchServer() {
	m.SetState(StateSwitchServer)
}

// SwitchLogin logs out and returns to the login dialog of the same server.
func (m *Machine) SwitchLogin() error {
	if err := m.require(StateCharSelect, StateWorldSelect, StateLoginError); err != nil {
		return err
	}
	m.SetState(StateSwitchLogin)
	return nil
}

// AcknowledgeError closes an error dialog and moves to the state that
// recovers from it.
func (m *Machine) AcknowledgeError() error {
	var next State
	switch m.state {
	case StateLoginError:
		next = StateLogin
	case StateAccountChangeError:
		next = StateCharSelect
	case StateError:
		next = StateSwitchServer
	default:
		return fmt.Errorf("%w: %s", ErrInvalidAction, m.state)
	}
	m.sess.ErrorMessage = ""
	m.SetState(next)
	return nil
}

// Cancel abandons a pending request.
func (m *Machine) Cancel() {
	if m.state.waiting() {
		m.SetState(StateSwitchServer)
	}
}

// Quit leaves the game politely when in it, or exits directly.
func (m *Machine) Quit() {
	if m.state == StateGame {
		if err := m.backend.Game().Quit(); err == nil {
			m.SetState(StateLogoutAttempt)
			return
		}
	}
	m.SetState(StateExit)
}

// ForceQuit exits without talking to the server.
func (m *Machine) ForceQuit() {
	m.SetState(StateForceQuit)
}
