package manaserv

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/manago/client/internal/core/event"
	gonet "github.com/manago/client/internal/net"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeConn is an in-memory datagram transport: one message per Next.
type fakeConn struct {
	state gonet.State
	err   string
	host  string
	port  uint16
	in    [][]byte
	sent  [][]byte
	dials int
}

func (c *fakeConn) Connect(host string, port uint16) error {
	c.state, c.host, c.port = gonet.StateConnected, host, port
	c.in = nil
	c.dials++
	return nil
}

func (c *fakeConn) Disconnect() {
	c.state = gonet.StateIdle
	c.in = nil
}

func (c *fakeConn) Send(b []byte) error {
	if c.state != gonet.StateConnected {
		return gonet.ErrNotConnected
	}
	c.sent = append(c.sent, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) Next() ([]byte, error) {
	if len(c.in) == 0 {
		return nil, nil
	}
	return c.in[0], nil
}

func (c *fakeConn) Flush()                   {}
func (c *fakeConn) IsConnected() bool        { return c.state == gonet.StateConnected }
func (c *fakeConn) State() gonet.State       { return c.state }
func (c *fakeConn) Error() string            { return c.err }
func (c *fakeConn) Server() (string, uint16) { return c.host, c.port }
func (c *fakeConn) Skip(int)                 {}
func (c *fakeConn) Consume(int)              { c.in = c.in[1:] }
func (c *fakeConn) Fail(err error)           { c.state, c.err = gonet.StateError, err.Error() }
func (c *fakeConn) last() []byte             { return c.sent[len(c.sent)-1] }
func (c *fakeConn) lastID() uint16           { return binary.BigEndian.Uint16(c.last()) }

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
	b       *Backend
	account *fakeConn
	game    *fakeConn
	chat    *fakeConn
	ctrl    *fakeCtrl
	sess    *session.Session
	bus     *event.Bus
}

func newFixture(t *testing.T, chatPerSecond float64) *fixture {
	t.Helper()
	f := &fixture{
		account: &fakeConn{},
		game:    &fakeConn{},
		chat:    &fakeConn{},
		ctrl:    &fakeCtrl{state: session.StateConnectServer},
		sess:    session.New(),
		bus:     event.NewBus(),
	}
	f.sess.Server = session.ServerDescriptor{Host: "account.example", Port: 9601, Kind: session.KindDatagram}
	f.b = New(Deps{
		Session:       f.sess,
		Bus:           f.bus,
		Account:       f.account,
		Game:          f.game,
		Chat:          f.chat,
		ChatPerSecond: chatPerSecond,
		Log:           zaptest.NewLogger(t),
	})
	f.b.Load(f.ctrl)
	return f
}

// server builds messages the way the servers write them.
var server = Codec()

func recv(f *fixture, c *fakeConn, msgs ...*packet.Writer) {
	for _, m := range msgs {
		c.in = append(c.in, m.Bytes())
	}
	f.b.Dispatch()
}

func events[T any](bus *event.Bus) []T {
	var got []T
	event.Subscribe(bus, func(e T) { got = append(got, e) })
	bus.SwapBuffers()
	bus.DispatchAll()
	return got
}

func token(fill byte) []byte { return bytes.Repeat([]byte{fill}, tokenSize) }

func charInfo(slot uint8, name string) *packet.Writer {
	w := server.NewWriter(apmsgCharInfo)
	w.WriteUint8(slot)
	w.WriteLenString(name)
	w.WriteUint8(uint8(session.GenderFemale))
	w.WriteUint8(3) // hair style
	w.WriteUint8(4) // hair color
	w.WriteUint16(12)
	w.WriteUint16(0)
	w.WriteUint16(0)
	w.WriteInt32(500)
	for i := 0; i < 6; i++ {
		w.WriteUint8(uint8(10 + i))
	}
	return w
}

func selectResponse(secret []byte) *packet.Writer {
	w := server.NewWriter(apmsgCharSelectResponse)
	w.WriteUint8(errOK)
	w.WriteBytes(secret)
	w.WriteLenString("game.example")
	w.WriteUint16(9604)
	w.WriteLenString("chat.example")
	w.WriteUint16(9603)
	return w
}

func response(id uint16, code uint8) *packet.Writer {
	w := server.NewWriter(id)
	w.WriteUint8(code)
	return w
}

func beingEnterCharacter(id uint16, name string, px, py uint16) *packet.Writer {
	w := server.NewWriter(gpmsgBeingEnter)
	w.WriteUint8(objectCharacter)
	w.WriteUint16(id)
	w.WriteUint8(0)
	w.WriteUint16(px)
	w.WriteUint16(py)
	w.WriteUint8(1)
	w.WriteLenString(name)
	w.WriteUint8(2)
	w.WriteUint8(5)
	w.WriteUint8(uint8(session.GenderMale))
	return w
}

// loggedIn runs the flow up to character selection with two characters.
func loggedIn(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.b.Login().Connect(f.sess.Server))
	recv(f, f.account, response(apmsgLoginResponse, errOK), charInfo(0, "Alice"), charInfo(1, "Bob"))
	require.Equal(t, session.StateWorldSelect, f.ctrl.state)
	require.NoError(t, f.b.Char().RequestCharacters())
	require.Equal(t, session.StateCharSelect, f.ctrl.state)
}

// inGame continues to the game with Alice selected.
func inGame(t *testing.T, f *fixture) {
	t.Helper()
	loggedIn(t, f)
	f.sess.Selected = 0
	require.NoError(t, f.b.Char().ChooseCharacter(0))
	recv(f, f.account, selectResponse(token(0xab)))
	require.Equal(t, session.StateConnectGame, f.ctrl.state)
	require.NoError(t, f.b.Game().Connect())
	recv(f, f.game, response(gpmsgConnectResponse, errOK))
	require.Equal(t, session.StateGame, f.ctrl.state)
}

func TestLoginSendsDigest(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.b.Login().Connect(f.sess.Server))
	assert.Equal(t, "account.example", f.account.host)

	require.NoError(t, f.b.Login().Login(session.Credentials{Username: "alice", Password: "hunter2"}))
	r := server.NewReader(f.account.last())
	assert.Equal(t, pamsgLogin, r.ID())
	assert.Equal(t, uint32(clientVersion), r.ReadUint32())
	assert.Equal(t, "alice", r.ReadLenString())
	digest := r.ReadLenString()
	assert.Len(t, digest, 64)
	assert.Equal(t, passwordDigest("alice", "hunter2"), digest)
	assert.NotContains(t, string(f.account.last()), "hunter2")
	assert.Zero(t, r.Remaining())
}

func TestRegisterSendsEmail(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.b.Login().Connect(f.sess.Server))
	assert.True(t, f.b.Login().RegistrationEnabled())

	c := session.Credentials{Username: "alice", Password: "hunter2", Email: "a@example.org"}
	require.NoError(t, f.b.Login().Register(c))
	r := server.NewReader(f.account.last())
	assert.Equal(t, pamsgRegister, r.ID())
	r.ReadUint32()
	assert.Equal(t, "alice", r.ReadLenString())
	assert.Equal(t, "hunter2", r.ReadLenString())
	assert.Equal(t, "a@example.org", r.ReadLenString())
}

func TestLoginResponse(t *testing.T) {
	t.Run("ok with update host", func(t *testing.T) {
		f := newFixture(t, 0)
		w := response(apmsgLoginResponse, errOK)
		w.WriteLenString("http://updates.example/")
		recv(f, f.account, w)
		assert.Equal(t, session.StateWorldSelect, f.ctrl.state)
		assert.Equal(t, "http://updates.example/", f.sess.UpdateHost)
		assert.Empty(t, f.sess.Worlds)
	})

	cases := []struct {
		code uint8
		want string
	}{
		{loginBanned, "Your account is banned."},
		{errInvalidArgument, "Wrong username or password."},
		{loginInvalidVersion, "Client version is too old."},
		{0x7f, "Unknown error."},
	}
	for _, tc := range cases {
		f := newFixture(t, 0)
		recv(f, f.account, response(apmsgLoginResponse, tc.code))
		assert.Equal(t, session.StateLoginError, f.ctrl.state)
		assert.Equal(t, tc.want, f.ctrl.msg)
	}
}

func TestChooseWorldUnsupported(t *testing.T) {
	f := newFixture(t, 0)
	assert.ErrorIs(t, f.b.Login().ChooseWorld(0), errNoWorlds)
}

func TestCharactersArePushed(t *testing.T) {
	f := newFixture(t, 0)
	loggedIn(t, f)

	require.Len(t, f.sess.Characters, 2)
	alice := f.sess.Characters[0]
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, 12, alice.Level)
	assert.Equal(t, int32(500), alice.Money)
	assert.Equal(t, [6]uint8{10, 11, 12, 13, 14, 15}, alice.Stats)
	assert.Len(t, events[event.CharactersChanged](f.bus), 2)

	// A push for a used slot replaces it.
	recv(f, f.account, charInfo(1, "Carol"))
	require.Len(t, f.sess.Characters, 2)
	assert.Equal(t, "Carol", f.sess.Characters[1].Name)
}

func TestDeleteCharacter(t *testing.T) {
	f := newFixture(t, 0)
	loggedIn(t, f)

	require.NoError(t, f.b.Char().DeleteCharacter(1))
	assert.Equal(t, pamsgCharDelete, f.account.lastID())
	recv(f, f.account, response(apmsgCharDeleteResponse, errOK))
	require.Len(t, f.sess.Characters, 1)
	assert.Equal(t, "Alice", f.sess.Characters[0].Name)

	notices := events[event.Notice](f.bus)
	require.NotEmpty(t, notices)
	assert.Equal(t, "Player deleted.", notices[len(notices)-1].Text)
}

func TestCreateCharacterError(t *testing.T) {
	f := newFixture(t, 0)
	loggedIn(t, f)

	c := session.Character{Name: "Dave", HairStyle: 1, HairColor: 2, Stats: [6]uint8{5, 5, 5, 5, 5, 5}}
	require.NoError(t, f.b.Char().NewCharacter(c))
	r := server.NewReader(f.account.last())
	assert.Equal(t, pamsgCharCreate, r.ID())
	assert.Equal(t, "Dave", r.ReadLenString())

	recv(f, f.account, response(apmsgCharCreateResponse, createExistsName))
	notices := events[event.Notice](f.bus)
	require.Len(t, notices, 1)
	assert.Equal(t, "Character's name already exists.", notices[0].Text)
	assert.Equal(t, session.StateCharSelect, f.ctrl.state)
}

func TestSelectConnectsGameAndChat(t *testing.T) {
	f := newFixture(t, 0)
	loggedIn(t, f)

	require.NoError(t, f.b.Char().ChooseCharacter(0))
	recv(f, f.account, selectResponse(token(0xab)))
	require.Equal(t, session.StateConnectGame, f.ctrl.state)
	assert.True(t, f.sess.Token.Armed())
	assert.Equal(t, session.Endpoint{Host: "game.example", Port: 9604}, f.sess.GameServer)
	assert.Equal(t, session.Endpoint{Host: "chat.example", Port: 9603}, f.sess.ChatServer)

	require.NoError(t, f.b.Game().Connect())
	assert.False(t, f.sess.Token.Armed())
	assert.Equal(t, "game.example", f.game.host)
	assert.Equal(t, pgmsgConnect, f.game.lastID())
	assert.Equal(t, token(0xab), f.game.last()[2:])
	assert.Equal(t, "chat.example", f.chat.host)
	assert.Equal(t, pcmsgConnect, f.chat.lastID())

	// The token is single use.
	assert.ErrorIs(t, f.b.Game().Connect(), session.ErrNoToken)

	recv(f, f.game, response(gpmsgConnectResponse, errOK))
	assert.Equal(t, session.StateGame, f.ctrl.state)
	assert.False(t, f.account.IsConnected())
}

func TestBeingsInConnectBatch(t *testing.T) {
	f := newFixture(t, 0)
	loggedIn(t, f)
	f.sess.Selected = 0
	require.NoError(t, f.b.Char().ChooseCharacter(0))
	recv(f, f.account, selectResponse(token(0xab)))
	require.NoError(t, f.b.Game().Connect())

	// The server streams the map contents right behind the connect reply.
	recv(f, f.game,
		response(gpmsgConnectResponse, errOK),
		beingEnterCharacter(7, "Alice", 48, 80),
		beingEnterCharacter(8, "Eve", 320, 320),
	)
	require.Equal(t, session.StateGame, f.ctrl.state)
	assert.True(t, f.b.Dispatcher().Handled(gpmsgBeingEnter))

	w := f.sess.World
	assert.Equal(t, int32(7), w.PlayerID)
	_, ok := w.Player()
	assert.True(t, ok)
	_, ok = w.Get(8)
	assert.True(t, ok)

	// The machine registers again on entering Game.
	f.b.EnterWorld()
	assert.Equal(t, 2, w.Len())
}

func TestPersistentIP(t *testing.T) {
	f := newFixture(t, 0)
	f.sess.Server.PersistentIP = true
	loggedIn(t, f)

	recv(f, f.account, selectResponse(token(1)))
	assert.Equal(t, session.Endpoint{Host: "account.example", Port: 9604}, f.sess.GameServer)
	assert.Equal(t, session.Endpoint{Host: "account.example", Port: 9603}, f.sess.ChatServer)
}

func TestSelectFailure(t *testing.T) {
	f := newFixture(t, 0)
	loggedIn(t, f)

	recv(f, f.account, response(apmsgCharSelectResponse, errFailure))
	assert.Equal(t, session.StateError, f.ctrl.state)
	assert.Equal(t, "No gameservers are available.", f.ctrl.msg)
}

func TestChatRejectionIsNotFatal(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)

	recv(f, f.chat, response(cpmsgConnectResponse, errNoLogin))
	assert.Equal(t, session.StateGame, f.ctrl.state)
	notices := events[event.Notice](f.bus)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Text, "Chat server")

	f.chat.Fail(gonet.ErrNotConnected)
	assert.Empty(t, f.b.LinkError())
	f.game.Fail(gonet.ErrNotConnected)
	assert.NotEmpty(t, f.b.LinkError())
}

func TestSwitchCharacterReconnects(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)

	require.NoError(t, f.b.Char().SwitchCharacter())
	r := server.NewReader(f.game.last())
	assert.Equal(t, pgmsgDisconnect, r.ID())
	assert.Equal(t, uint8(1), r.ReadUint8())

	w := response(gpmsgDisconnectResponse, errOK)
	w.WriteBytes(token(0xcd))
	recv(f, f.game, w)
	require.Equal(t, session.StateSwitchCharacter, f.ctrl.state)
	assert.True(t, f.sess.Token.Armed())

	f.b.Game().Disconnect()
	require.NoError(t, f.b.Char().RequestCharacters())
	assert.Equal(t, 2, f.account.dials)
	assert.Equal(t, pamsgReconnect, f.account.lastID())
	assert.Equal(t, token(0xcd), f.account.last()[2:])
	assert.Empty(t, f.sess.Characters)

	recv(f, f.account, response(apmsgReconnectResponse, errOK), charInfo(0, "Alice"))
	assert.Equal(t, session.StateCharSelect, f.ctrl.state)
	assert.Len(t, f.sess.Characters, 1)
}

func TestQuitResponse(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)

	require.NoError(t, f.b.Game().Quit())
	r := server.NewReader(f.game.last())
	assert.Equal(t, pgmsgDisconnect, r.ID())
	assert.Equal(t, uint8(0), r.ReadUint8())

	f.ctrl.state = session.StateLogoutAttempt
	recv(f, f.game, response(gpmsgDisconnectResponse, errOK))
	assert.Equal(t, session.StateExit, f.ctrl.state)
}

func TestDisconnectResponseError(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)

	recv(f, f.game, response(gpmsgDisconnectResponse, errNoLogin))
	assert.Equal(t, session.StateError, f.ctrl.state)
	assert.Equal(t, "Gameserver: Not logged in", f.ctrl.msg)
}

func TestBeingsInTiles(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)

	recv(f, f.game, beingEnterCharacter(7, "Alice", 48, 80), beingEnterCharacter(8, "Eve", 320, 320))
	w := f.sess.World
	assert.Equal(t, int32(7), w.PlayerID)
	p, ok := w.Player()
	require.True(t, ok)
	assert.Equal(t, uint16(1), p.X)
	assert.Equal(t, uint16(2), p.Y)

	move := server.NewWriter(gpmsgBeingsMove)
	move.WriteUint16(8)
	move.WriteUint8(movingPosition | movingDestination)
	move.WriteUint16(96)
	move.WriteUint16(96)
	move.WriteUint16(160)
	move.WriteUint16(192)
	move.WriteUint8(6)
	move.WriteUint16(99) // unknown, no movement data
	move.WriteUint8(0)
	recv(f, f.game, move)
	eve, ok := w.Get(8)
	require.True(t, ok)
	assert.Equal(t, uint16(3), eve.X)
	assert.Equal(t, uint16(3), eve.Y)
	assert.Equal(t, uint16(5), eve.DestX)
	assert.Equal(t, uint16(6), eve.DestY)
	assert.Equal(t, uint16(6), eve.Speed)

	leave := server.NewWriter(gpmsgBeingLeave)
	leave.WriteUint16(8)
	recv(f, f.game, leave)
	_, ok = w.Get(8)
	assert.False(t, ok)
	removed := events[event.BeingRemoved](f.bus)
	require.Len(t, removed, 1)
	assert.Equal(t, int32(8), removed[0].ID)
}

func TestSay(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)
	recv(f, f.game, beingEnterCharacter(7, "Alice", 48, 80), beingEnterCharacter(8, "Eve", 320, 320))
	events[event.BeingMoved](f.bus)

	say := func(id uint16, text string) *packet.Writer {
		w := server.NewWriter(gpmsgSay)
		w.WriteUint16(id)
		w.WriteLenString(text)
		return w
	}
	recv(f, f.game, say(8, "hi"), say(7, "hello"), say(0, "Server restarts soon"))

	chat := events[event.ChatReceived](f.bus)
	require.Len(t, chat, 2)
	assert.Equal(t, event.ChatReceived{Channel: event.ChatPublic, From: "Eve", Text: "hi"}, chat[0])
	assert.Equal(t, event.ChatReceived{Channel: event.ChatSelf, From: "Alice", Text: "hello"}, chat[1])
}

func TestChatRouting(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)

	require.NoError(t, f.b.Chat().Talk("hello"))
	r := server.NewReader(f.game.last())
	assert.Equal(t, pgmsgSay, r.ID())
	assert.Equal(t, "hello", r.ReadLenString())

	require.NoError(t, f.b.Chat().PrivateMessage("Bob", "psst"))
	r = server.NewReader(f.chat.last())
	assert.Equal(t, pcmsgPrivMsg, r.ID())
	assert.Equal(t, "Bob", r.ReadLenString())
	assert.Equal(t, "psst", r.ReadLenString())

	pm := server.NewWriter(cpmsgPrivMsg)
	pm.WriteLenString("Bob")
	pm.WriteLenString("hey")
	ann := server.NewWriter(cpmsgAnnouncement)
	ann.WriteLenString("Maintenance at noon")
	recv(f, f.chat, pm, ann)
	got := events[event.ChatReceived](f.bus)
	require.Len(t, got, 2)
	assert.Equal(t, event.ChatReceived{Channel: event.ChatWhisper, From: "Bob", Text: "hey"}, got[0])
	assert.Equal(t, event.ChatGM, got[1].Channel)
}

func TestChatRateLimit(t *testing.T) {
	f := newFixture(t, 0.001)
	inGame(t, f)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.b.Chat().Talk("spam"))
	}
	assert.ErrorIs(t, f.b.Chat().Talk("spam"), session.ErrChatFlood)
}

func TestWalkInPixels(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)

	require.NoError(t, f.b.Game().Walk(3, 4, 0))
	r := server.NewReader(f.game.last())
	assert.Equal(t, pgmsgWalk, r.ID())
	assert.Equal(t, uint16(3*32+16), r.ReadUint16())
	assert.Equal(t, uint16(4*32+16), r.ReadUint16())
	assert.NoError(t, f.b.Game().Ping(1))
}

func TestMapChange(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)
	events[event.MapChanged](f.bus)

	w := server.NewWriter(gpmsgPlayerMapChange)
	w.WriteLenString("maps/desert.tmx")
	w.WriteUint16(320)
	w.WriteUint16(64)
	recv(f, f.game, w)

	assert.Equal(t, "maps/desert", f.sess.World.Map)
	changed := events[event.MapChanged](f.bus)
	require.Len(t, changed, 1)
	assert.Equal(t, event.MapChanged{Map: "maps/desert", X: 10, Y: 2}, changed[0])
}

func TestServerChangeKeepsChat(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)

	w := server.NewWriter(gpmsgPlayerServerChange)
	w.WriteBytes(token(0xee))
	w.WriteLenString("game2.example")
	w.WriteUint16(9605)
	recv(f, f.game, w)
	require.Equal(t, session.StateChangeMap, f.ctrl.state)
	assert.True(t, f.sess.Token.Armed())

	f.b.LeaveWorld()
	f.b.Game().Disconnect()
	assert.True(t, f.chat.IsConnected())

	require.NoError(t, f.b.Game().Connect())
	assert.Equal(t, "game2.example", f.game.host)
	assert.Equal(t, token(0xee), f.game.last()[2:])
	assert.Equal(t, 1, f.chat.dials)
}

func TestTrade(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)
	recv(f, f.game, beingEnterCharacter(8, "Eve", 320, 320))

	req := func(id uint16) *packet.Writer {
		w := server.NewWriter(gpmsgTradeRequest)
		w.WriteUint16(id)
		return w
	}
	recv(f, f.game, req(8))
	requested := events[event.TradeRequested](f.bus)
	require.Len(t, requested, 1)
	assert.Equal(t, "Eve", requested[0].From)

	// A second request while one is pending is turned down.
	recv(f, f.game, req(9))
	assert.Equal(t, pgmsgTradeCancel, f.game.lastID())

	require.NoError(t, f.b.Trade().Respond(true))
	r := server.NewReader(f.game.last())
	assert.Equal(t, pgmsgTradeRequest, r.ID())
	assert.Equal(t, uint16(8), r.ReadUint16())

	recv(f, f.game, server.NewWriter(gpmsgTradeStart), server.NewWriter(gpmsgTradeComplete))
	ended := events[event.TradeEnded](f.bus)
	require.Len(t, ended, 1)
	assert.Equal(t, "complete", ended[0].Outcome)
}

func TestTradeHandlersOnlyInWorld(t *testing.T) {
	f := newFixture(t, 0)
	inGame(t, f)
	f.b.LeaveWorld()

	w := server.NewWriter(gpmsgTradeRequest)
	w.WriteUint16(8)
	recv(f, f.game, w)
	assert.Empty(t, events[event.TradeRequested](f.bus))
}
