// Package netstate tracks the device's connectivity as seen through
// remote call outcomes. The facade consults it to decide between the
// network and the persistent store.
package netstate

import (
	"fmt"
	"slices"
	"sync"

	"chatsync/internal/bus"
)

// State represents a connectivity state.
type State string

const (
	Booting  State = "BOOTING"
	Online   State = "ONLINE"
	Degraded State = "DEGRADED"
	Offline  State = "OFFLINE"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Online, Offline},
	Online:   {Degraded, Offline},
	Degraded: {Online, Offline},
	Offline:  {Online, Degraded},
}

// Machine tracks and enforces connectivity transitions, publishing a
// bus event on every change.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Online reports whether remote calls are worth attempting. Booting
// counts as online so the first fetch probes the network.
func (m *Machine) Online() bool {
	s := m.Current()
	return s == Online || s == Degraded || s == Booting
}

// Transition attempts to move to a new state. Moving to the current
// state is a no-op; an invalid transition returns an error.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind: bus.KindNetStatusChanged,
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// ReportSuccess records a successful remote round trip.
func (m *Machine) ReportSuccess() {
	_ = m.Transition(Online)
}

// ReportUnavailable records a transport-level failure.
func (m *Machine) ReportUnavailable() {
	_ = m.Transition(Offline)
}

// ReportRejected records a server rejection: the network is up but the
// service is misbehaving.
func (m *Machine) ReportRejected() {
	_ = m.Transition(Degraded)
}

// StatusChange is the payload for connectivity change events.
type StatusChange struct {
	From State
	To   State
}
