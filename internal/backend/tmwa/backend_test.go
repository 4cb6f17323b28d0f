package tmwa

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/manago/client/internal/core/event"
	gonet "github.com/manago/client/internal/net"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeConn is an in-memory transport framed like the real stream.
type fakeConn struct {
	framer packet.Framer
	state  gonet.State
	err    string
	host   string
	port   uint16
	in     []byte
	skip   int
	sent   [][]byte
	dials  int
}

func (c *fakeConn) Connect(host string, port uint16) error {
	c.state, c.host, c.port = gonet.StateConnected, host, port
	c.in, c.skip = nil, 0
	c.dials++
	return nil
}

func (c *fakeConn) Disconnect() {
	c.state = gonet.StateIdle
	c.in, c.skip = nil, 0
}

func (c *fakeConn) Send(b []byte) error {
	if c.state != gonet.StateConnected {
		return gonet.ErrNotConnected
	}
	c.sent = append(c.sent, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) Flush()                   {}
func (c *fakeConn) IsConnected() bool        { return c.state == gonet.StateConnected }
func (c *fakeConn) State() gonet.State       { return c.state }
func (c *fakeConn) Error() string            { return c.err }
func (c *fakeConn) Server() (string, uint16) { return c.host, c.port }
func (c *fakeConn) Skip(n int)               { c.skip += n }
func (c *fakeConn) Consume(n int)            { c.in = c.in[n:] }
func (c *fakeConn) Fail(err error)           { c.state, c.err = gonet.StateError, err.Error() }
func (c *fakeConn) last() []byte             { return c.sent[len(c.sent)-1] }
func (c *fakeConn) lastID() uint16           { return binary.LittleEndian.Uint16(c.last()) }

func (c *fakeConn) feed(msgs ...[]byte) {
	for _, m := range msgs {
		c.in = append(c.in, m...)
	}
}

func (c *fakeConn) Next() ([]byte, error) {
	if c.skip > 0 {
		n := min(c.skip, len(c.in))
		c.in = c.in[n:]
		c.skip -= n
	}
	n, err := c.framer.Frame(c.in)
	if err != nil || n == 0 {
		return nil, err
	}
	return c.in[:n], nil
}

type fakeCtrl struct {
	state session.State
	msg   string
}

func (c *fakeCtrl) State() session.State     { return c.state }
func (c *fakeCtrl) SetState(s session.State) { c.state = s }
func (c *fakeCtrl) Fail(msg string)          { c.state, c.msg = session.StateError, msg }
func (c *fakeCtrl) FailRecoverable(next session.State, msg string) {
	c.state, c.msg = next, msg
}

type fixture struct {
	b    *Backend
	conn *fakeConn
	ctrl *fakeCtrl
	sess *session.Session
	bus  *event.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		conn: &fakeConn{framer: Framer()},
		ctrl: &fakeCtrl{state: session.StateConnectServer},
		sess: session.New(),
		bus:  event.NewBus(),
	}
	f.b = New(Deps{
		Session:   f.sess,
		Bus:       f.bus,
		Transport: f.conn,
		Log:       zaptest.NewLogger(t),
	})
	f.b.Load(f.ctrl)
	return f
}

// server builds messages the way the server writes them.
var server = packet.Codec{Order: binary.LittleEndian}

func (f *fixture) recv(msgs ...*packet.Writer) {
	for _, m := range msgs {
		f.conn.feed(m.Bytes())
	}
	f.b.Dispatch()
}

// events delivers the queued events and returns those of type T.
func events[T any](bus *event.Bus) []T {
	var got []T
	event.Subscribe(bus, func(e T) { got = append(got, e) })
	bus.SwapBuffers()
	bus.DispatchAll()
	return got
}

func versionResponse(options uint32) *packet.Writer {
	w := server.NewWriter(smsgServerVersion)
	w.WriteBytes([]byte{0xff, 'T', 'M', 'W'})
	w.WriteUint32(options)
	return w
}

// loginTo runs the version handshake against the login server.
func (f *fixture) loginTo(t *testing.T) {
	t.Helper()
	f.sess.Server = session.ServerDescriptor{Host: "login.example", Port: 6901}
	require.NoError(t, f.b.Login().Connect(f.sess.Server))
	f.recv(versionResponse(flagRegistration))
	require.True(t, f.b.Login().IsConnected())
}

func loginData(worlds ...session.WorldInfo) *packet.Writer {
	w := server.NewVarWriter(smsgLoginData)
	w.WriteInt32(111) // session id 1
	w.WriteInt32(2000001)
	w.WriteInt32(222) // session id 2
	w.WriteBytes(make([]byte, 30))
	w.WriteUint8(uint8(session.GenderMale))
	for _, wi := range worlds {
		w.WriteBytes([]byte{127, 0, 0, 1})
		w.WriteUint16(wi.Endpoint.Port)
		w.WriteString(wi.Name, 20)
		w.WriteUint16(uint16(wi.Online))
		w.WriteUint16(0)
		w.WriteUint16(0)
	}
	return w
}

func writeChar(w *packet.Writer, id int32, name string, slot uint8) {
	w.WriteInt32(id)
	w.WriteInt32(0)    // exp
	w.WriteInt32(1500) // money
	w.WriteBytes(make([]byte, 40))
	w.WriteUint16(3)  // job
	w.WriteUint16(12) // hair style
	w.WriteUint16(0)
	w.WriteUint16(42) // level
	w.WriteBytes(make([]byte, 10))
	w.WriteUint16(5) // hair colour
	w.WriteUint16(0)
	w.WriteString(name, 24)
	w.WriteBytes([]byte{1, 2, 3, 4, 5, 6})
	w.WriteUint8(slot)
	w.WriteUint8(0)
}

func charList(chars ...session.Character) *packet.Writer {
	w := server.NewVarWriter(smsgCharLogin)
	w.WriteBytes(make([]byte, 20))
	for _, c := range chars {
		writeChar(w, c.ID, c.Name, uint8(c.Slot))
	}
	return w
}

func TestLoginWaitsForVersion(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.b.Login().Connect(session.ServerDescriptor{Host: "login.example", Port: 6901}))

	assert.Equal(t, cmsgServerVersion, f.conn.lastID())
	assert.False(t, f.b.Login().IsConnected(), "not connected before the version answer")

	f.recv(versionResponse(flagRegistration))
	assert.True(t, f.b.Login().IsConnected())
	assert.True(t, f.b.Login().RegistrationEnabled())
}

func TestLoginMessageLayout(t *testing.T) {
	f := newFixture(t)
	f.loginTo(t)

	require.NoError(t, f.b.Login().Login(session.Credentials{Username: "alice", Password: "secret"}))
	msg := f.conn.last()
	require.Len(t, msg, 55)
	r := server.NewReader(msg)
	assert.Equal(t, cmsgLoginRegister, r.ID())
	assert.Equal(t, int32(clientVersion), r.ReadInt32())
	assert.Equal(t, "alice", r.ReadString(24))
	assert.Equal(t, "secret", r.ReadString(24))
	assert.Equal(t, uint8(loginFlags), r.ReadUint8())
}

func TestRegisterAppendsGender(t *testing.T) {
	f := newFixture(t)
	f.loginTo(t)

	require.NoError(t, f.b.Login().Register(session.Credentials{Username: "bob", Password: "pw", Gender: session.GenderFemale}))
	r := server.NewReader(f.conn.last())
	r.Skip(4)
	assert.Equal(t, "bob_F", r.ReadString(24))
}

func TestLoginDataListsWorlds(t *testing.T) {
	f := newFixture(t)
	f.loginTo(t)

	f.recv(loginData(
		session.WorldInfo{Name: "Alpha", Endpoint: session.Endpoint{Port: 6122}, Online: 7},
		session.WorldInfo{Name: "Beta", Endpoint: session.Endpoint{Port: 6123}},
	))

	assert.Equal(t, session.StateWorldSelect, f.ctrl.state)
	require.Len(t, f.sess.Worlds, 2)
	assert.Equal(t, "Alpha", f.sess.Worlds[0].Name)
	assert.Equal(t, session.Endpoint{Host: "127.0.0.1", Port: 6122}, f.sess.Worlds[0].Endpoint)
	assert.Equal(t, 7, f.sess.Worlds[0].Online)
	assert.Equal(t, int32(2000001), f.sess.Token.AccountID)
	assert.Equal(t, int32(111), f.sess.Token.SessionID1)
	assert.Equal(t, int32(222), f.sess.Token.SessionID2)
	assert.Equal(t, session.GenderMale, f.sess.Token.Gender)
}

func TestLoginErrorIsRecoverable(t *testing.T) {
	tests := []struct {
		code uint8
		ban  string
		want string
	}{
		{code: 0, want: "Unregistered ID."},
		{code: 1, want: "Wrong password."},
		{code: 3, want: "Rejected from server."},
		{code: 6, ban: "2026-01-01 10:00:00", want: "You have been temporarily banned from the game until 2026-01-01 10:00:00.\nPlease contact the GM team via the forums."},
		{code: 99, want: "Username permanently erased."},
		{code: 42, want: "Unknown error."},
	}
	for _, tt := range tests {
		f := newFixture(t)
		f.loginTo(t)
		w := server.NewWriter(smsgLoginError)
		w.WriteUint8(tt.code)
		w.WriteString(tt.ban, 20)
		f.recv(w)
		assert.Equal(t, session.StateLoginError, f.ctrl.state, "code %d", tt.code)
		assert.Equal(t, tt.want, f.ctrl.msg, "code %d", tt.code)
	}
}

// toCharServer logs in, picks the only world and connects to its char
// server.
func (f *fixture) toCharServer(t *testing.T, chars ...session.Character) {
	t.Helper()
	f.loginTo(t)
	f.recv(loginData(session.WorldInfo{Name: "Alpha", Endpoint: session.Endpoint{Port: 6122}}))
	require.NoError(t, f.b.Login().ChooseWorld(0))
	require.NoError(t, f.b.Char().RequestCharacters())
	f.conn.feed([]byte{0x81, 0x84, 0x1e, 0x00}) // account id echo
	f.recv(charList(chars...))
}

func TestRequestCharactersConsumesToken(t *testing.T) {
	f := newFixture(t)
	f.loginTo(t)

	assert.ErrorIs(t, f.b.Char().RequestCharacters(), session.ErrNoToken)

	f.recv(loginData(session.WorldInfo{Name: "Alpha", Endpoint: session.Endpoint{Port: 6122}}))
	require.NoError(t, f.b.Login().ChooseWorld(0))
	require.NoError(t, f.b.Char().RequestCharacters())

	assert.Equal(t, "127.0.0.1", f.conn.host)
	assert.Equal(t, uint16(6122), f.conn.port)
	r := server.NewReader(f.conn.last())
	assert.Equal(t, cmsgCharServerConnect, r.ID())
	assert.Equal(t, int32(2000001), r.ReadInt32())
	assert.Equal(t, int32(111), r.ReadInt32())
	assert.Equal(t, int32(222), r.ReadInt32())
	assert.Equal(t, int16(protocolVersion), r.ReadInt16())
	assert.Equal(t, uint8(session.GenderMale), r.ReadUint8())
	assert.Equal(t, 4, f.conn.skip)
	assert.False(t, f.sess.Token.Armed())
}

func TestPersistentIPKeepsLoginHost(t *testing.T) {
	f := newFixture(t)
	f.loginTo(t)
	f.sess.Server.PersistentIP = true
	f.recv(loginData(session.WorldInfo{Name: "Alpha", Endpoint: session.Endpoint{Port: 6122}}))
	require.NoError(t, f.b.Login().ChooseWorld(0))
	assert.Equal(t, session.Endpoint{Host: "login.example", Port: 6122}, f.sess.CharServer)

	assert.Error(t, f.b.Login().ChooseWorld(3))
}

func TestCharacterList(t *testing.T) {
	f := newFixture(t)
	f.toCharServer(t,
		session.Character{ID: 150001, Name: "Ayla", Slot: 0},
		session.Character{ID: 150002, Name: "Bram", Slot: 2},
	)

	assert.Equal(t, session.StateCharSelect, f.ctrl.state)
	require.Len(t, f.sess.Characters, 2)
	c := f.sess.Characters[1]
	assert.Equal(t, int32(150002), c.ID)
	assert.Equal(t, "Bram", c.Name)
	assert.Equal(t, 2, c.Slot)
	assert.Equal(t, 42, c.Level)
	assert.Equal(t, int32(1500), c.Money)
	assert.Equal(t, uint16(12), c.HairStyle)
	assert.Equal(t, uint16(5), c.HairColor)
	assert.Equal(t, [6]uint8{1, 2, 3, 4, 5, 6}, c.Stats)
}

func TestCreateAndDeleteCharacter(t *testing.T) {
	f := newFixture(t)
	f.toCharServer(t, session.Character{ID: 150001, Name: "Ayla", Slot: 0})

	require.NoError(t, f.b.Char().NewCharacter(session.Character{Name: "Cato", Slot: 1, Stats: [6]uint8{5, 5, 5, 5, 5, 5}}))
	assert.Equal(t, cmsgCharCreate, f.conn.lastID())

	created := server.NewWriter(smsgCharCreateSucceeded)
	writeChar(created, 150003, "Cato", 1)
	f.recv(created)
	require.Len(t, f.sess.Characters, 2)

	assert.Error(t, f.b.Char().DeleteCharacter(4), "empty slot")
	require.NoError(t, f.b.Char().DeleteCharacter(0))
	r := server.NewReader(f.conn.last())
	assert.Equal(t, cmsgCharDelete, r.ID())
	assert.Equal(t, int32(150001), r.ReadInt32())
	assert.Equal(t, "a@a.com", r.ReadString(40))

	f.recv(server.NewWriter(smsgCharDeleteSucceeded))
	require.Len(t, f.sess.Characters, 1)
	assert.Equal(t, "Cato", f.sess.Characters[0].Name)

	notices := events[event.Notice](f.bus)
	require.NotEmpty(t, notices)
	assert.Equal(t, "Character deleted.", notices[len(notices)-1].Text)
}

func mapInfo(name string, port uint16) *packet.Writer {
	w := server.NewWriter(smsgCharMapInfo)
	w.WriteInt32(150001)
	w.WriteString(name, 16)
	w.WriteBytes([]byte{10, 0, 0, 5})
	w.WriteUint16(port)
	return w
}

// toGame walks a fixture from login to a map server.
func (f *fixture) toGame(t *testing.T) {
	t.Helper()
	f.toCharServer(t, session.Character{ID: 150001, Name: "Ayla", Slot: 0})
	f.sess.Selected = 0
	require.NoError(t, f.b.Char().ChooseCharacter(0))
	f.recv(mapInfo("009-1.gat", 5122))
	require.Equal(t, session.StateConnectGame, f.ctrl.state)

	require.NoError(t, f.b.Game().Connect())
	f.conn.feed([]byte{0x81, 0x84, 0x1e, 0x00})
	w := server.NewWriter(smsgMapLoginSuccess)
	w.WriteUint32(0)
	w.WriteCoordinates(30, 40, packet.DirDown)
	w.WriteUint16(0)
	f.recv(w)
	require.Equal(t, session.StateGame, f.ctrl.state)
	f.b.EnterWorld()
}

func TestMapInfoHandsOverToGame(t *testing.T) {
	f := newFixture(t)
	f.toCharServer(t, session.Character{ID: 150001, Name: "Ayla", Slot: 0})
	f.sess.Selected = 0
	require.NoError(t, f.b.Char().ChooseCharacter(0))
	assert.Equal(t, cmsgCharSelect, f.conn.lastID())

	f.recv(mapInfo("009-1.gat", 5122))

	assert.Equal(t, session.StateConnectGame, f.ctrl.state)
	assert.Equal(t, session.Endpoint{Host: "10.0.0.5", Port: 5122}, f.sess.GameServer)
	assert.Equal(t, "009-1", f.sess.World.Map)
	assert.True(t, f.sess.Token.Armed())
	assert.False(t, f.conn.IsConnected(), "char server connection is dropped")
}

func TestGameConnect(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)

	assert.Equal(t, uint16(5122), f.conn.port)
	var connect []byte
	for _, m := range f.conn.sent {
		if binary.LittleEndian.Uint16(m) == cmsgMapServerConnect {
			connect = m
		}
	}
	require.NotNil(t, connect)
	r := server.NewReader(connect)
	assert.Equal(t, int32(2000001), r.ReadInt32())
	assert.Equal(t, int32(150001), r.ReadInt32(), "map server is told the character id")

	p, ok := f.sess.World.Player()
	require.True(t, ok)
	assert.Equal(t, int32(2000001), p.ID, "map server knows the player by account id")
	assert.Equal(t, "Ayla", p.Name)
	assert.Equal(t, uint16(30), p.X)
	assert.Equal(t, uint16(40), p.Y)

	require.NoError(t, f.b.Game().ChangeMap(f.sess.World.Map))
	assert.Equal(t, cmsgMapLoaded, f.conn.lastID())
	maps := events[event.MapChanged](f.bus)
	require.Len(t, maps, 1)
	assert.Equal(t, event.MapChanged{Map: "009-1", X: 30, Y: 40}, maps[0])
}

func TestSendToWrongServer(t *testing.T) {
	f := newFixture(t)
	f.loginTo(t)

	err := f.b.Game().Walk(1, 2, packet.DirUp)
	assert.ErrorIs(t, err, gonet.ErrNotConnected)
	assert.Equal(t, cmsgServerVersion, f.conn.lastID(), "nothing sent")
}

func beingVisible(id int32, job uint16, x, y uint16) *packet.Writer {
	w := server.NewWriter(smsgBeingVisible)
	w.WriteInt32(id)
	w.WriteUint16(150)
	w.WriteBytes(make([]byte, 6))
	w.WriteUint16(job)
	w.WriteBytes(make([]byte, 6+12+4+6+1))
	w.WriteUint8(1)
	w.WriteCoordinates(x, y, packet.DirLeft)
	w.WriteBytes(make([]byte, 5))
	return w
}

func TestBeingVisibleRequestsName(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)
	events[event.MapChanged](f.bus)

	f.recv(beingVisible(150077, 0, 33, 41))
	r := server.NewReader(f.conn.last())
	require.Equal(t, cmsgNameRequest, r.ID())
	assert.Equal(t, int32(150077), r.ReadInt32())

	name := server.NewWriter(smsgBeingNameResponse)
	name.WriteInt32(150077)
	name.WriteString("Zed", 24)
	f.recv(name)

	b, ok := f.sess.World.Get(150077)
	require.True(t, ok)
	assert.Equal(t, "Zed", b.Name)
	assert.Equal(t, uint16(33), b.X)
	assert.Equal(t, packet.DirLeft, b.Dir)

	moved := events[event.BeingMoved](f.bus)
	require.Len(t, moved, 1)
	assert.Equal(t, int32(150077), moved[0].ID)

	rm := server.NewWriter(smsgBeingRemove)
	rm.WriteInt32(150077)
	rm.WriteUint8(0)
	f.recv(rm)
	_, ok = f.sess.World.Get(150077)
	assert.False(t, ok)
}

func TestMonstersAndPortals(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)
	sent := len(f.conn.sent)

	f.recv(beingVisible(110000100, 1002, 10, 10), beingVisible(110000101, 45, 11, 11))

	assert.Len(t, f.conn.sent, sent, "no name request for monsters")
	_, ok := f.sess.World.Get(110000100)
	assert.True(t, ok)
	_, ok = f.sess.World.Get(110000101)
	assert.False(t, ok, "portals are not tracked")
}

func TestWhisperResponsesFollowSendOrder(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)

	require.NoError(t, f.b.Chat().PrivateMessage("carol", "hi"))
	require.NoError(t, f.b.Chat().PrivateMessage("dave", "yo"))
	r := server.NewReader(f.conn.last())
	assert.Equal(t, cmsgChatWhisper, r.ID())
	assert.Equal(t, 4+24+2, r.Len())

	for _, code := range []uint8{1, 2} {
		w := server.NewWriter(smsgWhisperResponse)
		w.WriteUint8(code)
		f.recv(w)
	}
	notices := events[event.Notice](f.bus)
	require.Len(t, notices, 2)
	assert.Equal(t, "Whisper could not be sent, carol is offline.", notices[0].Text)
	assert.Equal(t, "Whisper could not be sent, ignored by dave.", notices[1].Text)
}

func TestIncomingChat(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)
	f.recv(beingVisible(150077, 0, 33, 41))
	name := server.NewWriter(smsgBeingNameResponse)
	name.WriteInt32(150077)
	name.WriteString("Zed", 24)
	f.recv(name)

	chat := server.NewVarWriter(smsgBeingChat)
	chat.WriteInt32(150077)
	chat.WriteText("Zed : hello there")
	whisper := server.NewVarWriter(smsgWhisper)
	whisper.WriteString("Server", 24)
	whisper.WriteText("Restart in 5 minutes")
	own := server.NewVarWriter(smsgPlayerChat)
	own.WriteText("Ayla : me too")
	f.recv(chat, whisper, own)

	got := events[event.ChatReceived](f.bus)
	require.Len(t, got, 2)
	assert.Equal(t, event.ChatReceived{Channel: event.ChatPublic, From: "Zed", Text: "hello there"}, got[0])
	assert.Equal(t, event.ChatReceived{Channel: event.ChatSelf, From: "Ayla", Text: "me too"}, got[1])
}

func TestTalkFormat(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)

	require.NoError(t, f.b.Chat().Talk("hello"))
	msg := f.conn.last()
	r := server.NewReader(msg)
	assert.Equal(t, cmsgChatMessage, r.ID())
	assert.Equal(t, len(msg), int(r.ReadUint16()))
	assert.Equal(t, "Ayla : hello", r.ReadString(r.Remaining()))
	assert.Equal(t, byte(0), msg[len(msg)-1])
}

func TestTalkTooLong(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)
	sent := len(f.conn.sent)

	err := f.b.Chat().Talk(strings.Repeat("x", math.MaxUint16))
	assert.ErrorIs(t, err, packet.ErrMessageTooLong)
	err = f.b.Chat().PrivateMessage("bob", strings.Repeat("x", math.MaxUint16))
	assert.ErrorIs(t, err, packet.ErrMessageTooLong)
	assert.Len(t, f.conn.sent, sent, "nothing sent")
}

func TestChatRateLimit(t *testing.T) {
	f := newFixture(t)
	f.b = New(Deps{Session: f.sess, Bus: f.bus, Transport: f.conn, ChatPerSecond: 0.001, Log: zaptest.NewLogger(t)})
	f.b.Load(f.ctrl)
	f.toGame(t)

	var err error
	for i := 0; i < 5 && err == nil; i++ {
		err = f.b.Chat().Talk("spam")
	}
	assert.ErrorIs(t, err, session.ErrChatFlood)
}

func TestConnectionProblem(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)

	w := server.NewWriter(smsgConnectionProblem)
	w.WriteUint8(2)
	f.recv(w)
	assert.Equal(t, session.StateError, f.ctrl.state)
	assert.Equal(t, "Someone else is trying to use this account.", f.ctrl.msg)

	g := newFixture(t)
	g.loginTo(t)
	w = server.NewWriter(smsgConnectionProblem)
	w.WriteUint8(2)
	g.recv(w)
	assert.Equal(t, "This account is already logged in.", g.ctrl.msg)
}

func TestChangeMapServer(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)

	w := server.NewWriter(smsgChangeMapServer)
	w.WriteString("010-2.gat", 16)
	w.WriteUint16(55)
	w.WriteUint16(66)
	w.WriteBytes([]byte{10, 0, 0, 6})
	w.WriteUint16(5123)
	f.recv(w)

	assert.Equal(t, session.StateChangeMap, f.ctrl.state)
	assert.Equal(t, "010-2", f.sess.World.Map)
	assert.Equal(t, session.Endpoint{Host: "10.0.0.6", Port: 5123}, f.sess.GameServer)
	p, ok := f.sess.World.Player()
	require.True(t, ok)
	assert.Equal(t, uint16(55), p.X)

	f.ctrl.state = session.StateChangeMap
	dials := f.conn.dials
	require.NoError(t, f.b.Game().Connect())
	assert.Equal(t, dials+1, f.conn.dials)
	r := server.NewReader(f.conn.last())
	r.Skip(4)
	assert.Equal(t, int32(150001), r.ReadInt32(), "character id is kept across map servers")
}

func TestCharSwitch(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)

	require.NoError(t, f.b.Char().SwitchCharacter())
	assert.Equal(t, cmsgPlayerReboot, f.conn.lastID())

	w := server.NewWriter(smsgCharSwitchResponse)
	w.WriteUint8(1)
	f.recv(w)
	assert.Equal(t, session.StateSwitchCharacter, f.ctrl.state)
	assert.True(t, f.sess.Token.Armed())

	f.b.LeaveWorld()
	f.b.Game().Disconnect()
	require.NoError(t, f.b.Char().RequestCharacters())
	assert.Equal(t, "127.0.0.1", f.conn.host)
}

func TestTradeWhileTradingIsRejected(t *testing.T) {
	f := newFixture(t)
	f.toGame(t)

	req := func(name string) *packet.Writer {
		w := server.NewWriter(smsgTradeRequest)
		w.WriteString(name, 24)
		return w
	}
	f.recv(req("Zed"))
	sent := len(f.conn.sent)
	f.recv(req("Yan"))

	require.Len(t, f.conn.sent, sent+1)
	r := server.NewReader(f.conn.last())
	assert.Equal(t, cmsgTradeResponse, r.ID())
	assert.Equal(t, uint8(tradeCancelled), r.ReadUint8())

	f.recv(server.NewWriter(smsgTradeComplete))
	ended := events[event.TradeEnded](f.bus)
	require.Len(t, ended, 1)
	assert.Equal(t, "complete", ended[0].Outcome)
	requests := events[event.TradeRequested](f.bus)
	assert.Empty(t, requests, "delivered before the subscription")
}

func TestInWorldHandlersOnlyInGame(t *testing.T) {
	f := newFixture(t)
	f.loginTo(t)
	assert.False(t, f.b.Dispatcher().Handled(smsgBeingVisible))

	g := newFixture(t)
	g.toGame(t)
	assert.True(t, g.b.Dispatcher().Handled(smsgBeingVisible))
	g.b.LeaveWorld()
	assert.False(t, g.b.Dispatcher().Handled(smsgBeingVisible))
	assert.True(t, g.b.Dispatcher().Handled(smsgMapLoginSuccess))
}
