// Package tmwa implements the session capabilities over the eAthena-style
// binary TCP protocol: little-endian integers, fixed-width strings and a
// single connection that hops from login to char to map server.
package tmwa

import (
	"encoding/binary"
	"fmt"

	"github.com/manago/client/internal/core/event"
	gonet "github.com/manago/client/internal/net"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/session"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/time/rate"
)

// hop is the server the single connection currently points at.
type hop int

const (
	hopNone hop = iota
	hopLogin
	hopChar
	hopMap
)

func (h hop) String() string {
	switch h {
	case hopLogin:
		return "login"
	case hopChar:
		return "char"
	case hopMap:
		return "map"
	default:
		return "none"
	}
}

// Deps are the collaborators of a Backend.
type Deps struct {
	Session *session.Session
	Bus     *event.Bus
	// Transport is built from Net when nil.
	Transport       gonet.Transport
	Net             gonet.Config
	Charset         encoding.Encoding
	MaxBytesPerTick int
	// ChatPerSecond limits outgoing chat lines; 0 disables the limit.
	ChatPerSecond float64
	Log           *zap.Logger
}

// Backend is the binary TCP implementation of session.Backend.
type Backend struct {
	sess  *session.Session
	bus   *event.Bus
	conn  gonet.Transport
	codec packet.Codec
	disp  *packet.Dispatcher
	ctrl  session.Controller

	hop          hop
	versionOK    bool
	registration bool

	login   *loginHandler
	char    *charHandler
	game    *gameHandler
	general *generalHandler
	being   *beingHandler
	chat    *chatHandler
	trade   *tradeHandler

	log *zap.Logger
}

func New(deps Deps) *Backend {
	log := deps.Log.With(zap.String("backend", "tmwa"))
	codec := packet.Codec{Order: binary.LittleEndian, Charset: deps.Charset}
	conn := deps.Transport
	if conn == nil {
		conn = gonet.NewStream(deps.Net, Framer(), log)
	}
	b := &Backend{
		sess:  deps.Session,
		bus:   deps.Bus,
		conn:  conn,
		codec: codec,
		disp:  packet.NewDispatcher(codec, Table(), deps.MaxBytesPerTick, log),
		log:   log,
	}
	limit := rate.Inf
	if deps.ChatPerSecond > 0 {
		limit = rate.Limit(deps.ChatPerSecond)
	}
	b.login = &loginHandler{b: b}
	b.char = &charHandler{b: b, deleting: -1}
	b.game = &gameHandler{b: b}
	b.general = &generalHandler{b: b}
	b.being = &beingHandler{b: b}
	b.chat = &chatHandler{b: b, limiter: rate.NewLimiter(limit, 3)}
	b.trade = &tradeHandler{b: b}
	return b
}

func (b *Backend) Kind() session.ProtocolKind     { return session.KindStream }
func (b *Backend) Login() session.LoginCapability { return b.login }
func (b *Backend) Char() session.CharCapability   { return b.char }
func (b *Backend) Game() session.GameCapability   { return b.game }
func (b *Backend) Chat() session.ChatCapability   { return b.chat }
func (b *Backend) Trade() session.TradeCapability { return b.trade }
func (b *Backend) Dispatcher() *packet.Dispatcher { return b.disp }
func (b *Backend) Transport() gonet.Transport     { return b.conn }
func (b *Backend) Flush()                         { b.conn.Flush() }
func (b *Backend) Dispatch()                      { b.disp.DispatchPending(b.conn) }

func (b *Backend) Load(ctrl session.Controller) {
	b.ctrl = ctrl
	b.disp.Register(b.login)
	b.disp.Register(b.char)
	b.disp.Register(b.game)
	b.disp.Register(b.general)
}

func (b *Backend) Unload() {
	b.disp.Clear()
}

func (b *Backend) EnterWorld() {
	b.disp.Register(b.being)
	b.disp.Register(b.chat)
	b.disp.Register(b.trade)
}

func (b *Backend) LeaveWorld() {
	b.disp.Unregister(b.being)
	b.disp.Unregister(b.chat)
	b.disp.Unregister(b.trade)
	b.chat.reset()
	b.trade.reset()
}

func (b *Backend) LinkError() string {
	if b.conn.State() == gonet.StateError {
		return b.conn.Error()
	}
	return ""
}

func (b *Backend) Close() {
	b.conn.Disconnect()
	b.hop = hopNone
	b.versionOK = false
}

// connect points the connection at a new server.
func (b *Backend) connect(to hop, host string, port uint16) error {
	b.conn.Disconnect()
	b.hop = hopNone
	if err := b.conn.Connect(host, port); err != nil {
		return fmt.Errorf("connect %s server: %w", to, err)
	}
	b.hop = to
	return nil
}

// disconnect drops the connection when it points at h.
func (b *Backend) disconnect(h hop) {
	if b.hop != h {
		return
	}
	b.conn.Disconnect()
	b.hop = hopNone
}

// send queues a message for the server the connection points at. A message
// for another server, or with no connection at all, is a caller bug.
func (b *Backend) send(to hop, w *packet.Writer) error {
	msg := w.Bytes()
	if err := w.Err(); err != nil {
		b.log.Warn("封包過長，未送出",
			zap.String("msg", fmt.Sprintf("0x%04x", binary.LittleEndian.Uint16(msg))),
			zap.Int("len", len(msg)),
		)
		return err
	}
	if b.hop != to {
		b.log.Error("封包送往錯誤的伺服器",
			zap.String("msg", fmt.Sprintf("0x%04x", binary.LittleEndian.Uint16(msg))),
			zap.Stringer("want", to),
			zap.Stringer("have", b.hop),
		)
		return fmt.Errorf("%s server: %w", to, gonet.ErrNotConnected)
	}
	if err := b.conn.Send(msg); err != nil {
		b.log.Error("封包送出失敗", zap.Error(err))
		return err
	}
	return nil
}

func (b *Backend) notice(text string) {
	event.Emit(b.bus, event.Notice{Text: text})
}
