package coro

import (
	"sync/atomic"
)

// State represents where a Coroutine sits in its lifecycle.
//
// State Machine:
//
//	Ready (0) → Running (1)          [resume]
//	Running (1) → Suspended (2)      [yield]
//	Suspended (2) → Running (1)      [resume]
//	Running (1) → Terminated (3)     [callable returns or panics]
//	Terminated (3) → Ready (0)       [reset]
//
// State Transition Rules:
//   - TryTransition (CAS) drives every transition below; there is no
//     Store-based bypass, since every move in this state machine is
//     gated by a precondition (see coroutine.go Resume/yield/reset).
//
// NOTE: values are intentionally ordered to mirror a
// lock-free FastState convention (a terminal state never reuses 0).
type State uint64

const (
	// Ready indicates the coroutine has not yet run, or was reset.
	Ready State = 0
	// Running indicates the coroutine is the one executing on its worker.
	Running State = 1
	// Suspended indicates the coroutine yielded and is parked awaiting resume.
	Suspended State = 2
	// Terminated indicates the callable returned or panicked; only Reset
	// leaves this state.
	Terminated State = 3
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Suspended:
		return "Suspended"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding,
// following a lock-free FastState shape.
type fastState struct { // betteralign:ignore
	_ [cacheLineSize]byte // padding before value, prevents false sharing
	v atomic.Uint64
	_ [cacheLineSize - 8]byte // pad to complete cache line
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(Ready))
	return s
}

// Load returns the current state atomically.
func (s *fastState) Load() State {
	return State(s.v.Load())
}

// TryTransition attempts to atomically transition from one state to another.
func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsTerminal returns true if the coroutine has terminated.
func (s *fastState) IsTerminal() bool {
	return s.Load() == Terminated
}

// CanResume returns true if the coroutine may legally be resumed.
func (s *fastState) CanResume() bool {
	switch s.Load() {
	case Ready, Suspended:
		return true
	default:
		return false
	}
}
