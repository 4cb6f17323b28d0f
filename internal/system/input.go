package system

import (
	"time"

	coresys "github.com/manago/client/internal/core/system"
)

// Ticker is the input source run at the start of each tick.
type Ticker interface {
	Tick()
}

// InputSystem runs the script or user input queued since the last tick.
// Phase 0 (Input).
type InputSystem struct {
	src Ticker
}

func NewInputSystem(src Ticker) *InputSystem {
	return &InputSystem{src: src}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) { s.src.Tick() }
