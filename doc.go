// Package coro provides a user-space stackful coroutine runtime: an M:N
// scheduler that multiplexes coroutines onto a fixed worker pool, built
// on top of Go's own goroutines rather than raw machine-context
// switching (see SPEC_FULL.md §0 for why).
//
// # Architecture
//
// A [Coroutine] wraps a goroutine plus a two-channel resume/yield
// handshake standing in for a register-level context switch: [Coroutine.Resume]
// signals the coroutine's goroutine to continue and blocks until it
// suspends or terminates; the free function [Yield] does the reverse
// from inside the running callable. Coroutines may optionally bind to a
// slot in a [SharedStackPool], which bounds concurrent occupancy the way
// the original runtime's shared-stack slots did, without byte-copying
// (Go goroutines never share stack memory to begin with).
//
// The sibling packages complete the runtime:
//   - queue: the MPMC task queue scheduler workers block on.
//   - scheduler: the worker-thread pool and schedule loop.
//   - ioruntime: the epoll reactor, fd table, and timer manager.
//   - hook: the cooperative I/O facade that reroutes blocking-style calls
//     through the scheduler and reactor (see SPEC_FULL.md §5 for why this
//     is an explicit facade rather than transparent symbol interception).
//
// # Platform Support
//
// The reactor uses epoll on Linux; other platforms get a stub poller
// returning ErrUnsupportedPlatform, matching spec.md's Non-goal on
// cross-platform parity (Windows support is explicitly out of scope).
//
// # Thread Safety
//
// [Coroutine.Resume] must only be called by one party at a time per
// coroutine (the scheduler, or a detached caller) - concurrent Resume
// calls on the same coroutine are a programming error, exactly as
// spec.md §3's "never Running on two threads simultaneously" invariant
// requires. [Yield] operates on whichever coroutine is currently running
// on the calling goroutine, discovered via the goroutine-id lookup in
// coroutine.go's currentCoroutines map.
//
// # Usage
//
//	pool := coro.NewPool(1000, coro.DefaultStackSize)
//	c := pool.Acquire(func() {
//	    fmt.Println("running")
//	    coro.Yield()
//	    fmt.Println("resumed")
//	})
//	c.Resume()
//	c.Resume()
//
// # Error Types
//
// The package provides the error categories spec.md §7 requires:
//   - [PanicError]: wraps a recovered panic from a coroutine's callable.
//   - [FatalError]: unrecoverable misuse (a nil callable, releasing a
//     coroutine to a [Pool] before it has terminated).
//   - sentinel errors ([ErrNotResumable], [ErrNoCurrentCoroutine],
//     [ErrResetNotTerminated]) for programming-error misuse.
package coro
