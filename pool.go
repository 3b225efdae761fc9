package coro

import (
	"sync"
	"sync/atomic"
)

// Pool is a reusable Coroutine cache with a configured idle-queue
// capacity, per spec.md §4.4. Acquire reuses a Terminated coroutine via
// Reset when one is idle, else constructs a fresh one; Release returns a
// Terminated coroutine to the idle queue, or drops it once the queue is
// at capacity.
//
// Follows a pooled-freelist shape: a plain mutex-guarded slice standing
// in for the idle queue, matching spec.md's choice of a simple bounded
// cache over anything fancier.
type Pool struct {
	mu   sync.Mutex
	idle []*Coroutine

	maxIdle   int
	stackSize int

	totalCreated atomic.Uint64
	totalReused  atomic.Uint64
}

// NewPool constructs a pool whose idle queue holds at most maxIdle
// coroutines, each built with stackSize (or DefaultStackSize if <= 0).
// maxIdle <= 0 is normalized to 0: no coroutine is ever cached, so every
// Acquire constructs fresh and every Release drops.
func NewPool(maxIdle int, stackSize int) *Pool {
	if maxIdle < 0 {
		maxIdle = 0
	}
	return &Pool{
		maxIdle:   maxIdle,
		stackSize: stackSize,
		idle:      make([]*Coroutine, 0, maxIdle),
	}
}

// Acquire returns a Ready coroutine running callable: a reused one from
// the idle queue if available, else a freshly constructed one.
func (p *Pool) Acquire(callable func(), opts ...Option) *Coroutine {
	p.mu.Lock()
	n := len(p.idle)
	if n > 0 {
		c := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.totalReused.Add(1)
		p.mu.Unlock()

		c.Reset(callable)
		return c
	}
	p.mu.Unlock()

	p.totalCreated.Add(1)
	allOpts := append([]Option{WithStackSize(p.stackSize)}, opts...)
	return New(callable, allOpts...)
}

// Release returns a Terminated coroutine to the idle queue, or drops it
// if the queue is already at maxIdle. Panics if coro is not Terminated,
// mirroring spec.md §4.4's precondition.
func (p *Pool) Release(coro *Coroutine) {
	if coro.State() != Terminated {
		panic(&FatalError{Message: "coro.Pool.Release: coroutine is not terminated"})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) >= p.maxIdle {
		return
	}
	p.idle = append(p.idle, coro)
}

// Stats is a snapshot of Pool statistics, per spec.md §4.4.
type Stats struct {
	TotalCreated uint64
	TotalReused  uint64
	IdleCount    int
}

// Stats returns a point-in-time snapshot, readable at any time without
// blocking acquirers/releasers for long.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()
	return Stats{
		TotalCreated: p.totalCreated.Load(),
		TotalReused:  p.totalReused.Load(),
		IdleCount:    idle,
	}
}
