package net

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/manago/client/internal/net/packet"
	"github.com/xtaci/kcp-go/v5"
	"go.uber.org/zap"
)

// NewDatagram creates a reliable, ordered, message-preserving UDP transport
// (KCP). Every received datagram is one message; no reassembly is needed.
func NewDatagram(cfg Config, log *zap.Logger) *Conn {
	c := newConn("datagram", cfg, dialKCP, &datagramInbox{}, true, log)
	c.hello = helloKCP
	return c
}

// HelloMessage opens a datagram session. KCP sockets are connectionless,
// so the server echoes this message before the transport counts as
// connected. The id is outside both protocols' message ranges.
var HelloMessage = []byte{0xff, 0xff}

// errNoHello means nothing answered the hello within the connect timeout.
var errNoHello = errors.New("no reply to hello")

func helloKCP(ctx context.Context, conn net.Conn, cfg Config) ([]byte, error) {
	_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
	if _, err := conn.Write(HelloMessage); err != nil {
		return nil, fmt.Errorf("hello: %w", err)
	}
	deadline := time.Now().Add(cfg.ConnectTimeout)
	buf := make([]byte, 64<<10)
	for ctx.Err() == nil {
		wait := min(cfg.PollInterval, time.Until(deadline))
		if wait <= 0 {
			return nil, errNoHello
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		n, err := conn.Read(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return nil, fmt.Errorf("hello: %w", err)
		}
		if bytes.Equal(buf[:n], HelloMessage) {
			return nil, nil
		}
		// A server that skips the echo has answered all the same.
		return append([]byte(nil), buf[:n]...), nil
	}
	return nil, ctx.Err()
}

func dialKCP(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ips, err := net.DefaultResolver.LookupHost(rctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no address for %s", host)
	}

	sess, err := kcp.DialWithOptions(net.JoinHostPort(ips[0], port), nil, 0, 0)
	if err != nil {
		return nil, err
	}
	sess.SetStreamMode(false)
	sess.SetNoDelay(1, 10, 2, 1)
	sess.SetWindowSize(128, 128)
	return sess, nil
}

type datagramInbox struct {
	queue [][]byte
	bytes int
}

func (d *datagramInbox) push(p []byte) {
	msg := make([]byte, len(p))
	copy(msg, p)
	d.queue = append(d.queue, msg)
	d.bytes += len(msg)
}

func (d *datagramInbox) next() ([]byte, error) {
	if len(d.queue) == 0 {
		return nil, nil
	}
	msg := d.queue[0]
	if len(msg) < 2 {
		return nil, fmt.Errorf("%w: %d-byte datagram", packet.ErrCorruptStream, len(msg))
	}
	return msg, nil
}

func (d *datagramInbox) skip(int) {
	if len(d.queue) == 0 {
		return
	}
	d.bytes -= len(d.queue[0])
	d.queue[0] = nil
	d.queue = d.queue[1:]
}

func (d *datagramInbox) size() int { return d.bytes }

func (d *datagramInbox) reset() {
	d.queue = nil
	d.bytes = 0
}
