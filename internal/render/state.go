package render

import (
	"fmt"
	"sync"
)

// State is a render lifecycle stage.
type State string

const (
	StateCreated      State = "created"
	StateSurfaceReady State = "surface_ready"
	StateCapturing    State = "capturing"
	StateEncoding     State = "encoding"
	StateAudioMixing  State = "audio_mixing"
	StateMuxing       State = "muxing"
	StateComplete     State = "complete"
	StateAborted      State = "aborted"
)

var stateOrder = map[State]int{
	StateCreated:      0,
	StateSurfaceReady: 1,
	StateCapturing:    2,
	StateEncoding:     3,
	StateAudioMixing:  4,
	StateMuxing:       5,
	StateComplete:     6,
}

// Terminal reports whether s ends a render.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateAborted
}

// Machine tracks a render's state. States only move forward; stages a codec
// does not need are skipped. Aborted is reachable from any non-terminal
// state.
type Machine struct {
	mu      sync.Mutex
	state   State
	visited []State
	onEnter func(State)
}

// NewMachine starts in StateCreated. onEnter runs after every successful
// transition, outside the lock.
func NewMachine(onEnter func(State)) *Machine {
	return &Machine{state: StateCreated, visited: []State{StateCreated}, onEnter: onEnter}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Visited lists every state entered, in order.
func (m *Machine) Visited() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.visited...)
}

// Enter moves to next.
func (m *Machine) Enter(next State) error {
	m.mu.Lock()
	current := m.state
	if current.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("render already %s", current)
	}
	if next != StateAborted {
		to, ok := stateOrder[next]
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("unknown render state %q", next)
		}
		if to <= stateOrder[current] {
			m.mu.Unlock()
			return fmt.Errorf("invalid transition %s -> %s", current, next)
		}
	}
	m.state = next
	m.visited = append(m.visited, next)
	m.mu.Unlock()

	if m.onEnter != nil {
		m.onEnter(next)
	}
	return nil
}

// Abort moves to StateAborted unless the render already ended. It reports
// whether the transition happened.
func (m *Machine) Abort() bool {
	return m.Enter(StateAborted) == nil
}
