package coro

import (
	"runtime"
	"sync"
	"sync/atomic"
)

var coroutineIDCounter atomic.Uint64

// currentCoroutines maps a goroutine id (per getGoroutineID) to the
// Coroutine presently running on it. This is the Go-native substitute
// for spec.md §4.11's thread-local "current coroutine" pointer: Yield
// discovers its caller here instead of reading a thread-local slot.
var currentCoroutines sync.Map // map[uint64]*Coroutine

// getGoroutineID returns the current goroutine's id, parsed from the
// runtime's own stack dump header ("goroutine NNN [running]:...").
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// Coroutine is a suspendable unit of execution: a goroutine plus the
// resume/yield handshake of switchHandle, following the state machine
// and data model of spec.md §3 (Ready → Running ↔ Suspended → Terminated).
type Coroutine struct { // betteralign:ignore
	id    uint64
	name  string
	state *fastState

	callable func()
	handle   *switchHandle

	stackSize int
	allocator *stackAllocator
	slot      *SharedStackSlot // non-nil iff shared-stack bound

	logger Logger

	// err captures a recovered panic from the callable, re-thrown into
	// the resumer per spec.md §4.3's entry-trampoline contract.
	err error

	started atomic.Bool
}

// New constructs a Ready coroutine running callable, per spec.md §6's
// "Coroutine construction with (closure, stack_size, name)".
func New(callable func(), opts ...Option) *Coroutine {
	if callable == nil {
		panic(&FatalError{Message: "coro.New: nil callable"})
	}
	cfg := resolveOptions(opts)

	c := &Coroutine{
		id:        coroutineIDCounter.Add(1),
		name:      cfg.name,
		state:     newFastState(),
		callable:  callable,
		handle:    newSwitchHandle(),
		stackSize: cfg.stackSize,
		logger:    cfg.logger,
		slot:      cfg.sharedSlot,
	}
	if c.slot == nil {
		c.allocator = newStackAllocator(cfg.stackSize)
	}
	return c
}

// ID returns the coroutine's monotonically assigned identity. It does
// not change across Reset-based reuse, per spec.md §9.
func (c *Coroutine) ID() uint64 { return c.id }

// Name returns the coroutine's diagnostic name.
func (c *Coroutine) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *Coroutine) State() State { return c.state.Load() }

// Err returns the error captured from a panicking callable, if the
// coroutine has Terminated abnormally. nil otherwise.
func (c *Coroutine) Err() error { return c.err }

// Resume transitions the coroutine to Running and switches into it,
// per spec.md §4.3. Precondition: state ∈ {Ready, Suspended}; violating
// it is a programming error (spec.md §7) and panics rather than
// returning an error, since there is no safe way to continue.
func (c *Coroutine) Resume() {
	from := c.state.Load()
	if (from != Ready && from != Suspended) || !c.state.TryTransition(from, Running) {
		panic(ErrNotResumable)
	}

	if c.slot != nil {
		c.slot.acquire(c)
	}

	if c.started.CompareAndSwap(false, true) {
		go c.run()
	}

	c.handle.swapIn()

	if c.slot != nil {
		// Whether c suspended or terminated, it is no longer Running, so
		// the slot is free for its next occupant - possibly c itself on
		// a later Resume, possibly a different coroutine bound to the
		// same slot. Released here, by the resumer, rather than inside
		// run(), so the release always happens-before Resume observes
		// the resulting state.
		c.slot.release()
	}

	if c.state.Load() == Terminated && c.err != nil {
		err := c.err
		c.err = nil
		panic(&PanicError{Value: err})
	}
}

// run is the entry trampoline (spec.md §4.3's main_func): invokes the
// callable under a catch-all, captures any panic as a side value, marks
// Terminated, and performs the final, non-blocking half of swapOut.
func (c *Coroutine) run() {
	<-c.handle.resumeCh // wait for the first Resume's swapIn to release us

	// This goroutine, not whichever goroutine calls Resume, is the one
	// that executes callable (and therefore the one Yield/Current must
	// resolve back to c from) for the entire lifetime of this run - it
	// persists across every suspend/resume cycle until termination.
	id := getGoroutineID()
	currentCoroutines.Store(id, c)
	defer currentCoroutines.Delete(id)

	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := c.captureBuf()
				runtime.Stack(buf, false)
				c.err = &PanicError{Value: r}
				if c.logger != nil {
					c.logger.Log(Entry{Message: "coroutine panicked", Err: c.err})
				}
			}
		}()
		c.callable()
	}()

	c.state.TryTransition(Running, Terminated)
	// Slot release happens in Resume, once, immediately after swapIn
	// returns - not here, since that keeps exactly one writer of the
	// "free the slot" decision regardless of why this coroutine stopped.
	// Signal the resumer; do not wait for a resumeCh send back, since a
	// terminated coroutine's goroutine has nothing left to run.
	c.handle.yieldCh <- struct{}{}
}

// captureBuf returns the fixed-size scratch buffer used to capture a
// crash trace, preferring the shared-stack slot's buffer when bound.
func (c *Coroutine) captureBuf() []byte {
	if c.slot != nil {
		return c.slot.buf
	}
	if c.allocator != nil {
		return c.allocator.allocate()
	}
	return make([]byte, DefaultStackSize)
}

// Current returns the coroutine running on the calling goroutine, or nil
// if none - the exported form of the thread-local "current coroutine"
// lookup spec.md §4.11 describes, for callers (the hook layer) that need
// to test for one without risking Yield's panic.
func Current() *Coroutine {
	v, ok := currentCoroutines.Load(getGoroutineID())
	if !ok {
		return nil
	}
	return v.(*Coroutine)
}

// Yield is the free function operating on the current coroutine
// (spec.md §4.3): precondition state = Running. It sets state to
// Suspended and switches back to whoever is blocked in Resume.
//
// Since this Go rendition collapses the main/scheduler coroutine
// distinction (SPEC_FULL.md §0), confirm_switch_target is unconditional:
// there is exactly one implicit switch target, the caller of Resume.
func Yield() {
	id := getGoroutineID()
	v, ok := currentCoroutines.Load(id)
	if !ok {
		panic(ErrNoCurrentCoroutine)
	}
	c := v.(*Coroutine)

	if !c.state.TryTransition(Running, Suspended) {
		panic(ErrNoCurrentCoroutine)
	}
	c.handle.swapOut()
}

// Reset reinitializes a Terminated coroutine with a new callable,
// reusing its id, per spec.md §4.3/§9: "the id does not change across
// reuse". Precondition: state = Terminated.
func (c *Coroutine) Reset(callable func()) {
	if callable == nil {
		panic(&FatalError{Message: "coro.Reset: nil callable"})
	}
	if !c.state.TryTransition(Terminated, Ready) {
		panic(ErrResetNotTerminated)
	}
	c.err = nil
	c.callable = callable
	c.handle = newSwitchHandle()
	c.started.Store(false)
}
