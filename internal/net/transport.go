package net

import (
	"errors"
	"fmt"
	"time"

	"github.com/manago/client/internal/net/packet"
)

// State is the lifecycle state of a transport.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

var (
	ErrNotConnected     = errors.New("transport not connected")
	ErrAlreadyConnected = errors.New("transport already connected")
	ErrEmptyHost        = errors.New("empty host")
)

// Transport moves opaque messages to and from one remote endpoint. All
// methods are called from the main thread; receiving happens on a worker
// goroutine owned by the transport. Worker failures are never returned:
// they move the transport to StateError, readable through Error.
type Transport interface {
	packet.Source

	// Connect starts a worker that resolves host, connects and receives.
	// It returns immediately with the transport in StateConnecting.
	Connect(host string, port uint16) error
	// Disconnect stops and joins the worker. Safe in any state.
	Disconnect()
	// Send queues b for the next Flush.
	Send(b []byte) error
	// Flush writes queued bytes. Call once per tick.
	Flush()
	IsConnected() bool
	State() State
	Error() string
	Server() (host string, port uint16)
	// Skip discards the next n inbound bytes, lazily if they have not
	// arrived yet.
	Skip(n int)
}

// Config tunes a transport.
type Config struct {
	// PollInterval bounds how long the worker takes to notice Disconnect.
	PollInterval   time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// MaxInbound stops the worker from reading while this many received
	// bytes are still waiting for dispatch.
	MaxInbound int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   500 * time.Millisecond,
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxInbound:     64 << 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxInbound <= 0 {
		c.MaxInbound = d.MaxInbound
	}
	return c
}
