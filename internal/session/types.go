package session

import (
	"fmt"
	"strings"

	"github.com/manago/client/internal/world"
)

// ProtocolKind selects the wire protocol, and with it the backend.
type ProtocolKind int

const (
	KindStream   ProtocolKind = iota // binary TCP, eAthena style
	KindDatagram                     // reliable UDP, message per datagram
)

func (k ProtocolKind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindDatagram:
		return "datagram"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// UnmarshalText accepts the names used in config files.
func (k *ProtocolKind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "stream", "tcp", "tmwathena", "eathena":
		*k = KindStream
	case "datagram", "udp", "enet", "manaserv":
		*k = KindDatagram
	default:
		return fmt.Errorf("unknown server type %q", string(b))
	}
	return nil
}

func (k ProtocolKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ServerDescriptor is one selectable login server. Immutable once built.
type ServerDescriptor struct {
	Host        string       `yaml:"hostname"`
	Port        uint16       `yaml:"port"`
	Kind        ProtocolKind `yaml:"type"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	// PersistentIP makes world hops reuse Host instead of the address the
	// login server announces, for servers behind NAT.
	PersistentIP bool `yaml:"persistent_ip"`
	Online       int  `yaml:"-"`
}

func (s ServerDescriptor) String() string {
	return fmt.Sprintf("%s:%d (%s)", s.Host, s.Port, s.Kind)
}

// Endpoint is a host and port handed out by a server for the next hop.
type Endpoint struct {
	Host string
	Port uint16
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Host, e.Port) }

// Gender uses the wire values of both protocols.
type Gender uint8

const (
	GenderFemale Gender = 0
	GenderMale   Gender = 1
)

func (g Gender) String() string {
	if g == GenderMale {
		return "male"
	}
	return "female"
}

// Credentials are owned by the state machine. The password never outlives
// the request that used it.
type Credentials struct {
	Username string
	Password string
	Remember bool

	// Registration and password change.
	Email       string
	NewPassword string
	Gender      Gender
}

// ClearPassword drops every secret.
func (c *Credentials) ClearPassword() {
	c.Password = ""
	c.NewPassword = ""
}

// Clear forgets the credentials, keeping the username when Remember is set.
func (c *Credentials) Clear() {
	name, remember := c.Username, c.Remember
	*c = Credentials{}
	if remember {
		c.Username = name
		c.Remember = true
	}
}

// Token authorises the next server hop. It is armed by the handler that
// receives the hop's address and consumed by the connect that uses it.
type Token struct {
	AccountID  int32
	SessionID1 int32
	SessionID2 int32
	Gender     Gender
	// Secret is the datagram protocol's opaque reconnection token.
	Secret string

	armed bool
}

func (t *Token) Arm()        { t.armed = true }
func (t *Token) Armed() bool { return t.armed }

// Consume returns the token for one connect and disarms it.
func (t *Token) Consume() (Token, error) {
	if !t.armed {
		return Token{}, ErrNoToken
	}
	t.armed = false
	return *t, nil
}

func (t *Token) Clear() { *t = Token{} }

// WorldInfo is one entry of the login server's world list.
type WorldInfo struct {
	Name        string
	Endpoint    Endpoint
	Online      int
	Maintenance bool
	New         bool
}

// Character is one slot of the character list.
type Character struct {
	Slot      int
	ID        int32
	Name      string
	Level     int
	Job       uint16
	Money     int32
	Gender    Gender
	HairStyle uint16
	HairColor uint16
	Map       string
	Stats     [6]uint8
}

// Session is the state shared by the machine and the protocol handlers.
// It is only touched from the main loop.
type Session struct {
	Server              ServerDescriptor
	Credentials         Credentials
	Token               Token
	RegistrationEnabled bool
	UpdateHost          string

	Worlds     []WorldInfo
	CharServer Endpoint
	GameServer Endpoint
	ChatServer Endpoint

	Characters []Character
	Selected   int // slot of the chosen character, -1 when none

	World *world.State

	// ErrorMessage is the text shown on entering an error state.
	ErrorMessage string
}

func New() *Session {
	return &Session{Selected: -1, World: world.NewState()}
}

// SelectedCharacter returns the chosen character.
func (s *Session) SelectedCharacter() (Character, bool) {
	for _, c := range s.Characters {
		if c.Slot == s.Selected {
			return c, true
		}
	}
	return Character{}, false
}

// CharacterByName finds a character by case-insensitive name.
func (s *Session) CharacterByName(name string) (Character, bool) {
	for _, c := range s.Characters {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Character{}, false
}

// Reset forgets everything learned from the current server.
func (s *Session) Reset() {
	s.Credentials.Clear()
	s.Token.Clear()
	s.RegistrationEnabled = false
	s.UpdateHost = ""
	s.Worlds = nil
	s.CharServer, s.GameServer, s.ChatServer = Endpoint{}, Endpoint{}, Endpoint{}
	s.Characters = nil
	s.Selected = -1
	s.World.Reset()
	s.ErrorMessage = ""
}
