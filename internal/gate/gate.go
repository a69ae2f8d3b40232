// Package gate implements the speech-gating core: per-frame classification
// with an energy pre-gate, history smoothing, the asymmetric-hysteresis gate
// state machine, and the pre-roll buffer that preserves word onsets.
//
// Everything here is driven by the single pipeline worker; nothing in this
// package is safe for concurrent use and nothing here blocks. Timestamps are
// passed in explicitly so the whole core runs against a synthetic clock in
// tests.
package gate

import "time"

// State is the gate position.
type State int

const (
	// Closed means audio is being held back (and pre-roll buffered).
	Closed State = iota
	// Open means audio is being routed to the recognizer.
	Open
)

// String returns the state name for logging.
func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Transition reports what a Machine.Update call did.
type Transition int

const (
	// TransitionNone means the gate kept its state.
	TransitionNone Transition = iota
	// TransitionOpened means the gate moved Closed -> Open this frame.
	TransitionOpened
	// TransitionClosed means the gate moved Open -> Closed this frame.
	TransitionClosed
)

// Machine converts the smoothed speech bit into a two-state gate with
// independent fast-attack and slow-release timers. A positive run shorter
// than the attack never opens the gate; a negative run shorter than the
// release never closes it.
type Machine struct {
	state   State
	attack  time.Duration
	release time.Duration

	onSince  time.Time
	hasOn    bool
	offSince time.Time
	hasOff   bool
}

// NewMachine creates a gate in the Closed state.
func NewMachine(attack, release time.Duration) *Machine {
	return &Machine{attack: attack, release: release}
}

// Update advances the gate by one frame and reports any transition. The
// caller acts on TransitionOpened by draining the pre-roll buffer into the
// recognizer, and on TransitionClosed by flushing and resetting it.
func (m *Machine) Update(speech bool, now time.Time) Transition {
	if speech {
		if !m.hasOn {
			m.onSince = now
			m.hasOn = true
		}
		m.hasOff = false
		if m.state == Closed && now.Sub(m.onSince) > m.attack {
			m.state = Open
			return TransitionOpened
		}
		return TransitionNone
	}

	if !m.hasOff {
		m.offSince = now
		m.hasOff = true
	}
	m.hasOn = false
	if m.state == Open && now.Sub(m.offSince) > m.release {
		m.state = Closed
		return TransitionClosed
	}
	return TransitionNone
}

// State returns the current gate position.
func (m *Machine) State() State {
	return m.state
}

// SetTimers adjusts the attack and release durations in place.
func (m *Machine) SetTimers(attack, release time.Duration) {
	m.attack = attack
	m.release = release
}

// Reset forces the gate Closed and clears both run timers.
func (m *Machine) Reset() {
	m.state = Closed
	m.hasOn = false
	m.hasOff = false
}
