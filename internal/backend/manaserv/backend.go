// Package manaserv implements the session capabilities over the datagram
// protocol: big-endian integers, length-prefixed strings, and separate
// connections to the account, game and chat servers that hand the player
// over with an opaque token.
package manaserv

import (
	"fmt"

	"github.com/manago/client/internal/core/event"
	gonet "github.com/manago/client/internal/net"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/time/rate"
)

// Deps are the collaborators of a Backend. Nil transports are built from
// Net.
type Deps struct {
	Session         *session.Session
	Bus             *event.Bus
	Account         gonet.Transport
	Game            gonet.Transport
	Chat            gonet.Transport
	Net             gonet.Config
	Charset         encoding.Encoding
	MaxBytesPerTick int
	ChatPerSecond   float64
	Log             *zap.Logger
}

// Backend is the datagram implementation of session.Backend.
type Backend struct {
	sess  *session.Session
	bus   *event.Bus
	codec packet.Codec
	disp  *packet.Dispatcher
	ctrl  session.Controller

	account gonet.Transport
	game    gonet.Transport
	chat    gonet.Transport

	login *loginHandler
	char  *charHandler
	gameH *gameHandler
	being *beingHandler
	chatH *chatHandler
	trade *tradeHandler

	log *zap.Logger
}

func New(deps Deps) *Backend {
	log := deps.Log.With(zap.String("backend", "manaserv"))
	codec := Codec()
	codec.Charset = deps.Charset
	b := &Backend{
		sess:    deps.Session,
		bus:     deps.Bus,
		codec:   codec,
		disp:    packet.NewDispatcher(codec, Table(), deps.MaxBytesPerTick, log),
		account: deps.Account,
		game:    deps.Game,
		chat:    deps.Chat,
		log:     log,
	}
	if b.account == nil {
		b.account = gonet.NewDatagram(deps.Net, log.With(zap.String("server", "account")))
	}
	if b.game == nil {
		b.game = gonet.NewDatagram(deps.Net, log.With(zap.String("server", "game")))
	}
	if b.chat == nil {
		b.chat = gonet.NewDatagram(deps.Net, log.With(zap.String("server", "chat")))
	}
	limit := rate.Inf
	if deps.ChatPerSecond > 0 {
		limit = rate.Limit(deps.ChatPerSecond)
	}
	b.login = &loginHandler{b: b}
	b.char = &charHandler{b: b, deleting: -1}
	b.gameH = &gameHandler{b: b}
	b.being = &beingHandler{b: b}
	b.chatH = &chatHandler{b: b, limiter: rate.NewLimiter(limit, 3)}
	b.trade = &tradeHandler{b: b}
	return b
}

func (b *Backend) Kind() session.ProtocolKind     { return session.KindDatagram }
func (b *Backend) Login() session.LoginCapability { return b.login }
func (b *Backend) Char() session.CharCapability   { return b.char }
func (b *Backend) Game() session.GameCapability   { return b.gameH }
func (b *Backend) Chat() session.ChatCapability   { return b.chatH }
func (b *Backend) Trade() session.TradeCapability { return b.trade }
func (b *Backend) Dispatcher() *packet.Dispatcher { return b.disp }

func (b *Backend) Load(ctrl session.Controller) {
	b.ctrl = ctrl
	b.disp.Register(b.login)
	b.disp.Register(b.char)
	b.disp.Register(b.gameH)
	b.disp.Register(b.chatH)
}

func (b *Backend) Unload() { b.disp.Clear() }

// EnterWorld registers the in-world handlers. The game connect response
// calls it before the machine reaches Game; repeating it is harmless.
func (b *Backend) EnterWorld() {
	b.disp.Register(b.being)
	b.disp.Register(b.trade)
}

func (b *Backend) LeaveWorld() {
	b.disp.Unregister(b.being)
	b.disp.Unregister(b.trade)
	b.trade.reset()
}

// Dispatch drains the three connections in handover order.
func (b *Backend) Dispatch() {
	b.disp.DispatchPending(b.account)
	b.disp.DispatchPending(b.game)
	b.disp.DispatchPending(b.chat)
}

func (b *Backend) Flush() {
	b.account.Flush()
	b.game.Flush()
	b.chat.Flush()
}

// LinkError reports the first failed connection. A chat server failure is
// not fatal to the session and only shows as a notice.
func (b *Backend) LinkError() string {
	for _, t := range []gonet.Transport{b.account, b.game} {
		if t.State() == gonet.StateError {
			return t.Error()
		}
	}
	return ""
}

func (b *Backend) Close() {
	b.account.Disconnect()
	b.game.Disconnect()
	b.chat.Disconnect()
}

// send queues a message on one connection.
func (b *Backend) send(t gonet.Transport, w *packet.Writer) error {
	msg := w.Bytes()
	if err := w.Err(); err != nil {
		b.log.Warn("封包過長，未送出",
			zap.String("msg", fmt.Sprintf("0x%04x", b.codec.Order.Uint16(msg))),
			zap.Int("len", len(msg)),
		)
		return err
	}
	if err := t.Send(msg); err != nil {
		b.log.Error("封包送出失敗",
			zap.String("msg", fmt.Sprintf("0x%04x", b.codec.Order.Uint16(msg))),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (b *Backend) notice(text string) {
	event.Emit(b.bus, event.Notice{Text: text})
}

func (b *Backend) connect(t gonet.Transport, ep session.Endpoint) error {
	t.Disconnect()
	if err := t.Connect(ep.Host, ep.Port); err != nil {
		return fmt.Errorf("connect %s: %w", ep, err)
	}
	return nil
}
