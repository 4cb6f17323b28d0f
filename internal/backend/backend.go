// Package backend picks the protocol implementation for a server.
package backend

import (
	"fmt"

	"github.com/manago/client/internal/backend/manaserv"
	"github.com/manago/client/internal/backend/tmwa"
	"github.com/manago/client/internal/core/event"
	gonet "github.com/manago/client/internal/net"
	"github.com/manago/client/internal/session"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// Deps are shared by both backends.
type Deps struct {
	Session         *session.Session
	Bus             *event.Bus
	Net             gonet.Config
	Charset         encoding.Encoding
	MaxBytesPerTick int
	ChatPerSecond   float64
	Log             *zap.Logger
}

// New builds the backend serving kind. Transports are created fresh.
func New(kind session.ProtocolKind, deps Deps) (session.Backend, error) {
	switch kind {
	case session.KindStream:
		return tmwa.New(tmwa.Deps{
			Session:         deps.Session,
			Bus:             deps.Bus,
			Net:             deps.Net,
			Charset:         deps.Charset,
			MaxBytesPerTick: deps.MaxBytesPerTick,
			ChatPerSecond:   deps.ChatPerSecond,
			Log:             deps.Log,
		}), nil
	case session.KindDatagram:
		return manaserv.New(manaserv.Deps{
			Session:         deps.Session,
			Bus:             deps.Bus,
			Net:             deps.Net,
			Charset:         deps.Charset,
			MaxBytesPerTick: deps.MaxBytesPerTick,
			ChatPerSecond:   deps.ChatPerSecond,
			Log:             deps.Log,
		}), nil
	default:
		return nil, fmt.Errorf("unknown protocol kind %d", int(kind))
	}
}

// Factory adapts New for session.NewMachine.
func Factory(deps Deps) session.BackendFactory {
	return func(kind session.ProtocolKind) (session.Backend, error) {
		return New(kind, deps)
	}
}
