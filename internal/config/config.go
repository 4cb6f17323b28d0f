package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	gonet "github.com/manago/client/internal/net"
	"github.com/manago/client/internal/session"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Account AccountConfig `toml:"account"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
	Profile ProfileConfig `toml:"profile"`
	Script  ScriptConfig  `toml:"script"`
	Metrics MetricsConfig `toml:"metrics"`
}

// ServerConfig names the default server. ServersFile adds the static list
// offered in the server dialog.
type ServerConfig struct {
	Host         string               `toml:"host"`
	Port         uint16               `toml:"port"`
	Backend      session.ProtocolKind `toml:"backend"` // "stream" or "datagram"
	Name         string               `toml:"name"`
	PersistentIP bool                 `toml:"persistent_ip"`
	ServersFile  string               `toml:"servers_file"`
}

type AccountConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Remember bool   `toml:"remember"`
	// Character is selected automatically when the list has it.
	Character string `toml:"character"`
	// ChooseDefault connects to the default server without asking.
	ChooseDefault bool `toml:"choose_default"`
	SkipUpdate    bool `toml:"skip_update"`
}

type NetworkConfig struct {
	TickRate        time.Duration `toml:"tick_rate"`
	BufferSize      int           `toml:"buffer_size"`
	MaxBytesPerTick int           `toml:"max_bytes_per_tick"`
	PollInterval    time.Duration `toml:"poll_interval"`
	ConnectTimeout  time.Duration `toml:"connect_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	RequestTimeout  time.Duration `toml:"request_timeout"`
	Charset         string        `toml:"charset"`
	ChatPerSecond   float64       `toml:"chat_per_second"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type ProfileConfig struct {
	Path string `toml:"path"` // sqlite file, empty disables the profile
}

type ScriptConfig struct {
	Path string `toml:"path"` // Lua autopilot, empty runs the built-in one
}

type MetricsConfig struct {
	Listen string `toml:"listen"` // empty disables /metrics
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Network.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    6901,
			Backend: session.KindStream,
		},
		Account: AccountConfig{
			ChooseDefault: true,
		},
		Network: NetworkConfig{
			TickRate:        50 * time.Millisecond,
			BufferSize:      64 << 10,
			MaxBytesPerTick: 16 << 10,
			PollInterval:    500 * time.Millisecond,
			ConnectTimeout:  10 * time.Second,
			WriteTimeout:    10 * time.Second,
			RequestTimeout:  30 * time.Second,
			ChatPerSecond:   2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Profile: ProfileConfig{
			Path: "manago.db",
		},
	}
}

// validate rejects tuning the client cannot run with. The inbound buffer
// must hold the largest message the 16-bit length field can announce, or a
// stream carrying one never makes progress.
func (n NetworkConfig) validate() error {
	if n.TickRate <= 0 {
		return fmt.Errorf("network.tick_rate must be positive, got %s", n.TickRate)
	}
	if n.BufferSize < math.MaxUint16 {
		return fmt.Errorf("network.buffer_size must be at least %d, got %d", math.MaxUint16, n.BufferSize)
	}
	if n.MaxBytesPerTick < 0 {
		return fmt.Errorf("network.max_bytes_per_tick must not be negative, got %d", n.MaxBytesPerTick)
	}
	if n.ChatPerSecond < 0 {
		return fmt.Errorf("network.chat_per_second must not be negative, got %g", n.ChatPerSecond)
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"poll_interval", n.PollInterval},
		{"connect_timeout", n.ConnectTimeout},
		{"write_timeout", n.WriteTimeout},
		{"request_timeout", n.RequestTimeout},
	} {
		if d.v < 0 {
			return fmt.Errorf("network.%s must not be negative, got %s", d.name, d.v)
		}
	}
	return nil
}

// Transport returns the transport tuning.
func (n NetworkConfig) Transport() gonet.Config {
	return gonet.Config{
		PollInterval:   n.PollInterval,
		ConnectTimeout: n.ConnectTimeout,
		WriteTimeout:   n.WriteTimeout,
		MaxInbound:     n.BufferSize,
	}
}

// Servers returns the default server followed by the static list.
func (c *Config) Servers() ([]session.ServerDescriptor, error) {
	var out []session.ServerDescriptor
	if c.Server.Host != "" {
		out = append(out, session.ServerDescriptor{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			Kind:         c.Server.Backend,
			Name:         c.Server.Name,
			PersistentIP: c.Server.PersistentIP,
		})
	}
	if c.Server.ServersFile == "" {
		return out, nil
	}
	list, err := LoadServers(c.Server.ServersFile)
	if err != nil {
		return nil, err
	}
	return append(out, list...), nil
}
