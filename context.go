package coro

// switchHandle is the Go-native replacement for spec.md §4.1's machine
// Context: rather than a snapshot of CPU registers, it is a pair of
// unbuffered channels used to hand control between a coroutine's
// goroutine and whoever is currently its switch partner (the resumer,
// or the coroutine itself via Yield).
//
// This is grounded on the handshake in
// _examples/other_examples/blastbao-go-coopsched__coopsched.go, whose
// task.waitAndBlock/Scheduler.resumeFill pair plays exactly the role
// swap(from, to) plays in the original spec: one side signals, the
// other blocks until signalled back.
type switchHandle struct {
	// resumeCh is signalled to let the coroutine's goroutine continue
	// past its current suspension point (or to start it, the first time).
	resumeCh chan struct{}
	// yieldCh is signalled by the coroutine's goroutine when it suspends
	// or terminates, waking up whoever is blocked in swapIn.
	yieldCh chan struct{}
}

func newSwitchHandle() *switchHandle {
	return &switchHandle{
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan struct{}),
	}
}

// swapIn is the resumer's half of co_swap: signal the coroutine to run,
// then block until it suspends or terminates. It must never be called
// concurrently for the same switchHandle - spec.md §3's invariant that a
// coroutine is never Running on two threads simultaneously depends on
// callers (Coroutine.Resume) enforcing that via the state machine.
func (h *switchHandle) swapIn() {
	h.resumeCh <- struct{}{}
	<-h.yieldCh
}

// swapOut is the coroutine's half: signal the resumer that it has
// suspended (or is about to terminate), then block until resumed again.
// Called from yield(); the entry trampoline's final swapOut (on
// termination) is signal-only and never blocks - see coroutine.go.
func (h *switchHandle) swapOut() {
	h.yieldCh <- struct{}{}
	<-h.resumeCh
}
