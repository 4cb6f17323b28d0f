package net

import (
	"context"
	"net"
	"time"

	"github.com/manago/client/internal/net/packet"
	"go.uber.org/zap"
)

// NewStream creates a TCP transport whose byte stream is split into
// messages by framer.
func NewStream(cfg Config, framer packet.Framer, log *zap.Logger) *Conn {
	cfg = cfg.withDefaults()
	in := &streamInbox{buf: NewBuffer(cfg.MaxInbound), framer: framer}
	return newConn("stream", cfg, dialTCP, in, false, log)
}

func dialTCP(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", addr)
}

type streamInbox struct {
	buf    *Buffer
	framer packet.Framer
}

func (s *streamInbox) push(p []byte) { s.buf.Append(p) }

func (s *streamInbox) next() ([]byte, error) {
	view := s.buf.Bytes()
	n, err := s.framer.Frame(view)
	if err != nil || n == 0 {
		return nil, err
	}
	return view[:n:n], nil
}

func (s *streamInbox) skip(n int) { s.buf.Skip(n) }
func (s *streamInbox) size() int  { return s.buf.Len() }
func (s *streamInbox) reset()     { s.buf.Reset() }
