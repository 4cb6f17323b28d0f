package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/manago/client/internal/metrics"
	"go.uber.org/zap"
)

// inbox holds received data until the main thread dispatches it. The stream
// inbox frames a byte buffer; the datagram inbox queues whole messages.
type inbox interface {
	push(p []byte)
	next() ([]byte, error)
	skip(n int)
	size() int
	reset()
}

// dialFunc opens the socket. It must honour ctx for cancellation.
type dialFunc func(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error)

// helloFunc confirms that a peer answers on a freshly dialled socket. It
// returns the first application message if one arrived instead of the
// reply, and must notice ctx within one poll interval.
type helloFunc func(ctx context.Context, conn net.Conn, cfg Config) ([]byte, error)

// Conn is the Transport implementation shared by both wire protocols.
// One mutex guards state and both buffers; it is never held across a
// socket call.
type Conn struct {
	kind  string
	cfg   Config
	dial  dialFunc
	hello helloFunc // nil when dialling is the handshake

	mu      sync.Mutex
	state   State
	err     string
	epoch   uint64 // bumped on Connect, Disconnect and Fail
	conn    net.Conn
	cancel  context.CancelFunc
	in      inbox
	out     *Buffer
	outMsgs [][]byte // datagram transports keep message boundaries
	framed  bool
	host    string
	port    uint16
	viewGen uint64 // epoch at the last Next

	wg  sync.WaitGroup
	log *zap.Logger
}

func newConn(kind string, cfg Config, dial dialFunc, in inbox, framed bool, log *zap.Logger) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		kind:   kind,
		cfg:    cfg,
		dial:   dial,
		in:     in,
		out:    NewBuffer(4096),
		framed: framed,
		log:    log.With(zap.String("transport", kind)),
	}
}

func (c *Conn) Connect(host string, port uint16) error {
	if host == "" {
		c.mu.Lock()
		c.state = StateError
		c.err = "empty address given to connect"
		c.mu.Unlock()
		return ErrEmptyHost
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		c.log.Warn("重複連線請求被拒絕", zap.String("host", host), zap.Uint16("port", port))
		return ErrAlreadyConnected
	}
	c.mu.Unlock()
	// An errored worker may still be winding down.
	c.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.state = StateConnecting
	c.err = ""
	c.cancel = cancel
	c.host, c.port = host, port
	c.in.reset()
	c.resetOut()
	c.mu.Unlock()

	c.log.Info("連線中", zap.String("host", host), zap.Uint16("port", port))
	c.wg.Add(1)
	go c.run(ctx, epoch, net.JoinHostPort(host, strconv.Itoa(int(port))))
	return nil
}

// Disconnect keeps the last error message readable until the next Connect.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn = nil, nil
	if cancel != nil {
		cancel()
	}
	c.epoch++
	c.state = StateIdle
	c.in.reset()
	c.resetOut()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
}

// Fail closes the connection after an unrecoverable error detected on the
// main thread, such as a corrupt stream.
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn = nil, nil
	if cancel != nil {
		cancel()
	}
	c.epoch++
	c.state = StateError
	c.err = err.Error()
	c.in.reset()
	c.resetOut()
	c.mu.Unlock()

	metrics.TransportErrors.WithLabelValues(c.kind).Inc()
	c.log.Error("連線已中止", zap.Error(err))
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
}

func (c *Conn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting && c.state != StateConnected {
		return fmt.Errorf("send %d bytes: %w", len(b), ErrNotConnected)
	}
	if c.framed {
		c.outMsgs = append(c.outMsgs, append([]byte(nil), b...))
		return nil
	}
	c.out.Append(b)
	return nil
}

func (c *Conn) resetOut() {
	c.out.Reset()
	c.outMsgs = nil
}

func (c *Conn) Flush() {
	if c.framed {
		c.flushMessages()
		return
	}
	c.mu.Lock()
	if c.state != StateConnected || c.out.Len() == 0 {
		c.mu.Unlock()
		return
	}
	conn, epoch := c.conn, c.epoch
	data := append([]byte(nil), c.out.Bytes()...)
	c.resetOut()
	c.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	n, err := conn.Write(data)
	metrics.BytesSent.WithLabelValues(c.kind).Add(float64(n))
	if err == nil {
		return
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.mu.Lock()
		if c.epoch == epoch {
			c.out.Unread(data[n:])
		}
		c.mu.Unlock()
		c.log.Warn("寫入逾時，剩餘資料下次重送", zap.Int("sent", n), zap.Int("left", len(data)-n))
		return
	}
	c.setError(epoch, fmt.Errorf("send: %w", err))
}

// flushMessages writes queued messages one datagram each. On a timeout the
// unsent messages are requeued in order.
func (c *Conn) flushMessages() {
	c.mu.Lock()
	if c.state != StateConnected || len(c.outMsgs) == 0 {
		c.mu.Unlock()
		return
	}
	conn, epoch := c.conn, c.epoch
	msgs := c.outMsgs
	c.outMsgs = nil
	c.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	for i, msg := range msgs {
		n, err := conn.Write(msg)
		metrics.BytesSent.WithLabelValues(c.kind).Add(float64(n))
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			c.mu.Lock()
			if c.epoch == epoch {
				c.outMsgs = append(msgs[i:len(msgs):len(msgs)], c.outMsgs...)
			}
			c.mu.Unlock()
			c.log.Warn("寫入逾時，剩餘封包下次重送", zap.Int("left", len(msgs)-i))
			return
		}
		c.setError(epoch, fmt.Errorf("send: %w", err))
		return
	}
}

// Next returns the next complete message, or nil when none is buffered.
// Buffered messages stay readable after the peer closes, so a final error
// reply still reaches its handler.
func (c *Conn) Next() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewGen = c.epoch
	return c.in.next()
}

// Consume releases the message Next returned. It is ignored when the
// connection was reset in between, for example by a handler reconnecting.
func (c *Conn) Consume(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.viewGen != c.epoch {
		return
	}
	c.in.skip(n)
}

// Skip discards the next n inbound bytes, including bytes that have not
// arrived yet. Datagram transports drop the next message instead.
func (c *Conn) Skip(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in.skip(n)
}

func (c *Conn) IsConnected() bool { return c.State() == StateConnected }

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) Server() (string, uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host, c.port
}

// run is the worker: connect, then receive until cancelled or failed.
func (c *Conn) run(ctx context.Context, epoch uint64, addr string) {
	defer c.wg.Done()

	conn, err := c.dial(ctx, addr, c.cfg.ConnectTimeout)
	if err != nil {
		if ctx.Err() == nil {
			c.setError(epoch, fmt.Errorf("connect %s: %w", addr, err))
		}
		return
	}
	var first []byte
	if c.hello != nil {
		first, err = c.hello(ctx, conn, c.cfg)
		if err != nil {
			conn.Close()
			if ctx.Err() == nil {
				c.setError(epoch, fmt.Errorf("connect %s: %w", addr, err))
			}
			return
		}
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	if first != nil {
		c.in.push(first)
	}
	c.mu.Unlock()
	c.log.Info("已連線", zap.String("addr", addr))

	chunk := make([]byte, 64<<10)
	for ctx.Err() == nil {
		c.mu.Lock()
		full := c.in.size() >= c.cfg.MaxInbound
		c.mu.Unlock()
		if full {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.PollInterval):
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PollInterval))
		n, err := conn.Read(chunk)
		if n > 0 {
			metrics.BytesReceived.WithLabelValues(c.kind).Add(float64(n))
			c.mu.Lock()
			if c.epoch == epoch {
				c.in.push(chunk[:n])
			}
			c.mu.Unlock()
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				c.setError(epoch, errors.New("connection closed by server"))
			} else {
				c.setError(epoch, fmt.Errorf("receive: %w", err))
			}
			return
		}
	}
}

// setError records a failure unless the connection it belongs to is gone.
func (c *Conn) setError(epoch uint64, err error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.err = err.Error()
	c.mu.Unlock()

	metrics.TransportErrors.WithLabelValues(c.kind).Inc()
	c.log.Warn("連線錯誤", zap.Error(err))
}
