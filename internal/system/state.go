package system

import (
	"time"

	"github.com/manago/client/internal/core/event"
	coresys "github.com/manago/client/internal/core/system"
)

// Updater is the session machine.
type Updater interface {
	Update()
}

// StateSystem runs pending session transitions. Phase 2 (Update).
type StateSystem struct {
	m Updater
}

func NewStateSystem(m Updater) *StateSystem {
	return &StateSystem{m: m}
}

func (s *StateSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *StateSystem) Update(_ time.Duration) { s.m.Update() }

// EventSystem delivers the previous tick's events, then rotates the bus so
// this tick's events go out on the next one. Phase 3 (Events).
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhaseEvents }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.DispatchAll()
	s.bus.SwapBuffers()
}
