package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput   Phase = iota // 0: scripted or user input
	PhaseNetwork              // 1: dispatch received packets
	PhaseUpdate               // 2: session state machine
	PhaseEvents               // 3: deliver last tick's events
	PhaseOutput               // 4: flush outbound buffers
	PhasePersist              // 5: profile and chat log
)

var phaseNames = [...]string{"input", "network", "update", "events", "output", "persist"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// System is one step of the client tick.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
