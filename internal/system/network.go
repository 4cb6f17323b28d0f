package system

import (
	"time"

	coresys "github.com/manago/client/internal/core/system"
	"github.com/manago/client/internal/session"
)

// BackendSource returns the active backend, nil before a server is chosen.
type BackendSource interface {
	Backend() session.Backend
}

// NetworkSystem dispatches the messages received since the last tick.
// Phase 1 (Network).
type NetworkSystem struct {
	src BackendSource
}

func NewNetworkSystem(src BackendSource) *NetworkSystem {
	return &NetworkSystem{src: src}
}

func (s *NetworkSystem) Phase() coresys.Phase { return coresys.PhaseNetwork }

func (s *NetworkSystem) Update(_ time.Duration) {
	if b := s.src.Backend(); b != nil {
		b.Dispatch()
	}
}

// OutputSystem flushes everything queued during the tick. Phase 4 (Output).
type OutputSystem struct {
	src BackendSource
}

func NewOutputSystem(src BackendSource) *OutputSystem {
	return &OutputSystem{src: src}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	if b := s.src.Backend(); b != nil {
		b.Flush()
	}
}
