package session

import "errors"

var (
	// ErrNoToken means a connect was attempted without an armed token.
	ErrNoToken = errors.New("no session token for this connection")
	// ErrWrongBackend means a backend was asked to serve a server of the
	// other protocol kind.
	ErrWrongBackend = errors.New("backend does not match server protocol")
	// ErrChatFlood is returned when chat is sent faster than the configured
	// rate.
	ErrChatFlood = errors.New("chat rate limit exceeded")
)

// LoginCapability talks to the login (account) server.
type LoginCapability interface {
	Connect(server ServerDescriptor) error
	IsConnected() bool
	Disconnect()
	// Login sends the credentials. The caller clears the password after.
	Login(c Credentials) error
	Register(c Credentials) error
	ChangePassword(username, oldPassword, newPassword string) error
	// ChooseWorld records the world whose character server is used next.
	ChooseWorld(index int) error
	Logout() error
	RegistrationEnabled() bool
}

// CharCapability talks to the character server.
type CharCapability interface {
	// RequestCharacters connects to the character server if the protocol
	// needs it, and asks for the character list.
	RequestCharacters() error
	ChooseCharacter(slot int) error
	NewCharacter(c Character) error
	DeleteCharacter(slot int) error
	// SwitchCharacter asks the game server to send the player back to
	// character selection.
	SwitchCharacter() error
}

// GameCapability talks to the map (game) server.
type GameCapability interface {
	// Connect consumes the session token armed for the game server.
	Connect() error
	IsConnected() bool
	Disconnect()
	// ChangeMap records the map the player is on and acknowledges it.
	ChangeMap(name string) error
	MapLoaded() error
	Walk(x, y uint16, dir uint8) error
	Quit() error
	Ping(tick uint32) error
}

// ChatCapability sends chat.
type ChatCapability interface {
	Talk(text string) error
	PrivateMessage(recipient, text string) error
}

// TradeCapability drives player to player trades.
type TradeCapability interface {
	Request(beingID int32) error
	Respond(accept bool) error
	Cancel() error
}

// Backend is one protocol implementation of every capability. A session
// uses exactly one backend; it is picked when the server is chosen.
type Backend interface {
	Kind() ProtocolKind
	Login() LoginCapability
	Char() CharCapability
	Game() GameCapability
	Chat() ChatCapability
	Trade() TradeCapability

	// Load registers the connection handlers; EnterWorld and LeaveWorld
	// add and remove the in-world handlers.
	Load(ctrl Controller)
	Unload()
	EnterWorld()
	LeaveWorld()

	// Dispatch handles received messages on every live transport.
	Dispatch()
	Flush()
	// LinkError returns the error of a failed transport, or "".
	LinkError() string
	// Close disconnects every transport.
	Close()
}

// Controller is what handlers may do to the state machine.
type Controller interface {
	State() State
	SetState(s State)
	// Fail moves to Error with msg.
	Fail(msg string)
	// FailRecoverable shows msg and moves to next, a state the user can
	// retry from.
	FailRecoverable(next State, msg string)
}

// UI is the dialog layer. Request methods open a dialog; the user's answer
// comes back through the Machine's action methods.
type UI interface {
	StateChanged(old, new State)
	ShowConnecting(msg string)
	ShowError(msg string)
	ShowNotice(msg string)
	RequestServer(servers []ServerDescriptor)
	RequestLogin(c Credentials, registering bool)
	RequestWorld(worlds []WorldInfo)
	RequestCharacter(chars []Character)
}

// Assets updates and loads game data between login and character
// selection.
type Assets interface {
	Update(host string) error
	LoadData() error
}
