// Package statemachine tracks the per-symbol trade lifecycle and gates
// which actions are legal from each state.
package statemachine

import (
	"sync"
	"time"

	"bastion/internal/logger"
)

// State is a stage of the trade lifecycle for one symbol.
type State string

const (
	StateWait      State = "WAIT"
	StateCandidate State = "CANDIDATE"
	StateEntered   State = "ENTERED"
	StateManaging  State = "MANAGING"
	StateExited    State = "EXITED"
	StateCooldown  State = "COOLDOWN"
)

// Actions accepted by Transition.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// maxConsecutiveHolds is how many HOLDs a CANDIDATE survives before it
// demotes back to WAIT.
const maxConsecutiveHolds = 3

// SymbolState is the tracked lifecycle record for one symbol.
type SymbolState struct {
	Symbol           string     `json:"symbol"`
	State            State      `json:"state"`
	EnteredAt        *time.Time `json:"entered_at,omitempty"`
	ExitedAt         *time.Time `json:"exited_at,omitempty"`
	LastAction       string     `json:"last_action,omitempty"`
	LastActionTime   time.Time  `json:"last_action_time"`
	ConsecutiveHolds int        `json:"consecutive_holds"`
}

// Machine holds the lifecycle state for every tracked symbol. Safe for
// concurrent use.
type Machine struct {
	mu       sync.Mutex
	states   map[string]*SymbolState
	cooldown time.Duration
	nowFn    func() time.Time
}

func New(cooldown time.Duration) *Machine {
	return &Machine{
		states:   make(map[string]*SymbolState),
		cooldown: cooldown,
		nowFn:    time.Now,
	}
}

// WithClock overrides the clock used for cooldown expiry and timestamps.
func (m *Machine) WithClock(nowFn func() time.Time) *Machine {
	if nowFn != nil {
		m.nowFn = nowFn
	}
	return m
}

// State returns the current state for symbol, WAIT if never seen.
func (m *Machine) State(symbol string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(symbol).State
}

// Snapshot returns a copy of the full tracked record for symbol.
func (m *Machine) Snapshot(symbol string) SymbolState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.get(symbol)
}

// All returns copies of every tracked record.
func (m *Machine) All() []SymbolState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SymbolState, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, *st)
	}
	return out
}

// CanOpen reports whether an entry is legal from the symbol's state.
// COOLDOWN stays closed until a transition decays it back to WAIT.
func (m *Machine) CanOpen(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.get(symbol).State {
	case StateWait, StateCandidate:
		return true
	default:
		return false
	}
}

// CanClose reports whether an exit is legal from the symbol's state.
func (m *Machine) CanClose(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.get(symbol).State {
	case StateEntered, StateManaging:
		return true
	default:
		return false
	}
}

// Transition applies an executed action to the symbol's lifecycle and
// returns the resulting state. hasPosition distinguishes a filled entry
// from a pending one. Illegal action/state pairs are logged and leave the
// state untouched.
func (m *Machine) Transition(symbol, action string, hasPosition bool) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.get(symbol)
	now := m.nowFn()
	prev := st.State

	switch action {
	case ActionBuy:
		state := st.State
		if state == StateCooldown && m.cooldownElapsed(st) {
			// An elapsed cooldown behaves like WAIT again.
			state = StateWait
		}
		switch state {
		case StateWait, StateCandidate:
			if hasPosition {
				st.State = StateEntered
				st.EnteredAt = &now
			} else {
				st.State = StateCandidate
			}
			st.ConsecutiveHolds = 0
		case StateCooldown:
			logger.Warnf("state machine: BUY ignored for %s, cooldown still active", symbol)
		default:
			logger.Warnf("state machine: BUY illegal from %s for %s, ignored", st.State, symbol)
		}

	case ActionSell:
		switch st.State {
		case StateEntered, StateManaging:
			// EXITED is transient; an exit opens the cooldown window
			// in the same step.
			st.ExitedAt = &now
			st.State = StateCooldown
			st.ConsecutiveHolds = 0
		default:
			logger.Warnf("state machine: SELL illegal from %s for %s, ignored", st.State, symbol)
		}

	case ActionHold:
		switch st.State {
		case StateEntered:
			st.State = StateManaging
		case StateCandidate:
			st.ConsecutiveHolds++
			if st.ConsecutiveHolds >= maxConsecutiveHolds {
				st.State = StateWait
				st.ConsecutiveHolds = 0
			}
		case StateCooldown:
			if m.cooldownElapsed(st) {
				st.State = StateWait
			}
		}

	default:
		logger.Warnf("state machine: unknown action %q for %s, ignored", action, symbol)
		return st.State
	}

	st.LastAction = action
	st.LastActionTime = now
	if st.State != prev {
		logger.Infof("state machine: %s %s -> %s (action=%s)", symbol, prev, st.State, action)
	}
	return st.State
}

// Reset drops the tracked record for symbol.
func (m *Machine) Reset(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, symbol)
}

// ForceState overrides a symbol's state, for reconciling against broker
// reality on startup.
func (m *Machine) ForceState(symbol string, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.get(symbol)
	prev := st.State
	st.State = state
	st.LastActionTime = m.nowFn()
	logger.Infof("state machine: %s forced %s -> %s", symbol, prev, state)
}

// Cleanup drops records idle longer than maxAge. Symbols with live
// positions (ENTERED, MANAGING) are never dropped.
func (m *Machine) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	removed := 0
	for sym, st := range m.states {
		if st.State == StateEntered || st.State == StateManaging {
			continue
		}
		if now.Sub(st.LastActionTime) > maxAge {
			delete(m.states, sym)
			removed++
		}
	}
	return removed
}

// get returns the record for symbol, creating a WAIT record on first use.
// Caller must hold mu.
func (m *Machine) get(symbol string) *SymbolState {
	st, ok := m.states[symbol]
	if !ok {
		st = &SymbolState{
			Symbol:         symbol,
			State:          StateWait,
			LastActionTime: m.nowFn(),
		}
		m.states[symbol] = st
	}
	return st
}

// cooldownElapsed reports whether the post-exit window has passed.
// Caller must hold mu.
func (m *Machine) cooldownElapsed(st *SymbolState) bool {
	if st.ExitedAt == nil {
		return true
	}
	return m.nowFn().Sub(*st.ExitedAt) >= m.cooldown
}
