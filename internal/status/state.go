package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/davrbek/chatline/internal/bus"
)

// State represents the transport connection state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected},
	Connected:    {Disconnected},
}

// Machine tracks and enforces connection state transitions. It also carries
// the reconnect-attempt counter used to index the backoff schedule: the
// counter only ever grows until a successful connection resets it.
type Machine struct {
	mu       sync.RWMutex
	current  State
	attempts int
	bus      *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if to == Connected {
		m.attempts = 0
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindTransportState,
			Timestamp: time.Now(),
			Payload: StateChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// NextAttempt increments the reconnect-attempt counter and returns its new
// value (1 for the first reconnect after a drop).
func (m *Machine) NextAttempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	return m.attempts
}

// Attempts returns the current reconnect-attempt count.
func (m *Machine) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// StateChange is the payload for transport.state_changed events.
type StateChange struct {
	From State
	To   State
}
