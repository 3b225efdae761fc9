// Package scheduler implements spec.md §4.5: an N-worker-goroutine pool
// that drains a queue.Queue of coroutine-resume and closure tasks.
//
// Follows an event loop's Run/shutdownImpl/run/tick
// idiom: a Once-guarded Start/Stop pair, an atomic state machine instead
// of ad-hoc booleans, runtime.LockOSThread per worker (pinning
// its loop goroutine to its OS thread; we do the same per spec.md §5's
// "N OS threads run the scheduler's main loop"), and panic recovery
// around dispatched work so one bad task never kills a worker.
package scheduler

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/gocoro"
	"github.com/joeycumines/gocoro/queue"
)

// schedulerState mirrors a lock-free FastState shape, trimmed to the three
// states a scheduler actually needs.
type schedulerState int32

const (
	stateNotStarted schedulerState = iota
	stateRunning
	stateStopped
)

// Scheduler is the worker-thread pool of spec.md §4.5: construction
// takes a worker count, a name, and an optional shared-stack mode;
// schedule(fiber)/schedule(closure) push onto an internal queue that
// the workers drain.
type Scheduler struct {
	name        string
	workerCount int
	pool        *coro.Pool
	queue       *queue.Queue
	logger      coro.Logger
	sharedStack *coro.SharedStackPool

	state    atomic.Int32
	startOne sync.Once
	stopOne  sync.Once
	wg       sync.WaitGroup
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithLogger attaches a Logger used to report swallowed task panics, per
// spec.md §7's "the scheduler catches and logs, but does not let them
// propagate across the scheduler loop."
func WithLogger(logger coro.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithPool supplies a pre-built coroutine Pool instead of the scheduler's
// own default, letting callers share one pool across multiple schedulers.
func WithPool(pool *coro.Pool) Option {
	return func(s *Scheduler) { s.pool = pool }
}

// WithSharedStackPool enables spec.md §4.5's "optional shared-stack mode
// flag": closures scheduled via ScheduleClosure are bound, on first
// creation, to a slot allocated round-robin from pool instead of each
// getting an independent stack.
func WithSharedStackPool(pool *coro.SharedStackPool) Option {
	return func(s *Scheduler) { s.sharedStack = pool }
}

// New constructs a Scheduler with workerCount worker goroutines (clamped
// to at least 1, per spec.md §4.5's "N ≥ 1").
func New(workerCount int, name string, opts ...Option) *Scheduler {
	if workerCount < 1 {
		workerCount = 1
	}
	s := &Scheduler{
		name:        name,
		workerCount: workerCount,
		queue:       queue.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = coro.NewPool(1000, coro.DefaultStackSize)
	}
	return s
}

// Name returns the scheduler's diagnostic name.
func (s *Scheduler) Name() string { return s.name }

// Pool returns the coroutine pool backing ScheduleClosure.
func (s *Scheduler) Pool() *coro.Pool { return s.pool }

// Start spawns the worker goroutines. Idempotent: subsequent calls are
// no-ops, matching spec.md §4.5's "start(): idempotent."
func (s *Scheduler) Start() {
	s.startOne.Do(func() {
		s.state.Store(int32(stateRunning))
		s.wg.Add(s.workerCount)
		for i := 0; i < s.workerCount; i++ {
			go s.workerLoop()
		}
	})
}

// Stop closes the task queue and joins every worker. Safe to call
// multiply, including before Start (in which case no workers existed
// to join and this simply marks the scheduler stopped).
func (s *Scheduler) Stop() {
	s.stopOne.Do(func() {
		s.state.Store(int32(stateStopped))
		s.queue.Stop()
		s.wg.Wait()
	})
}

// ScheduleCoroutine pushes c onto the task queue for the next free
// worker to Resume. Valid before Start (tasks queue up) and during Run,
// per spec.md §4.5.
func (s *Scheduler) ScheduleCoroutine(c *coro.Coroutine) {
	s.queue.Push(queue.Task{Resume: func() { s.resumeOnce(c) }})
}

// ScheduleClosure acquires a pool coroutine wrapping fn and schedules
// it, per spec.md §4.5's "for closures, acquire a pool coroutine first."
func (s *Scheduler) ScheduleClosure(fn func()) {
	var opts []coro.Option
	if s.sharedStack != nil {
		opts = append(opts, coro.WithSharedStack(s.sharedStack.Allocate()))
	}
	c := s.pool.Acquire(fn, opts...)
	s.ScheduleCoroutine(c)
}

// workerLoop is the per-thread run loop of spec.md §4.5: pop, dispatch,
// repeat until the queue reports stopped-and-drained.
func (s *Scheduler) workerLoop() {
	defer s.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		task, ok := s.queue.Pop()
		if !ok {
			return
		}
		if task.Resume != nil {
			task.Resume()
		} else if task.Closure != nil {
			s.safeInvoke(task.Closure)
		}
	}
}

// resumeOnce resumes c exactly once and releases it to the pool if it
// has reached Terminated, per spec.md §4.5's schedule_loop contract. A
// panic re-thrown by Resume (spec.md §7's "coroutine-raised exceptions
// ... re-raised into the resumer on the resume return") is caught and
// logged here so it never propagates across the worker loop.
func (s *Scheduler) resumeOnce(c *coro.Coroutine) {
	defer func() {
		if r := recover(); r != nil {
			s.logPanic(r)
		}
		if c.State() == coro.Terminated {
			s.pool.Release(c)
		}
	}()
	c.Resume()
}

// safeInvoke runs fn under a catch-all, per spec.md §4.5's "invoke it
// directly in try/catch; any exception is logged and swallowed."
func (s *Scheduler) safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logPanic(r)
		}
	}()
	fn()
}

func (s *Scheduler) logPanic(r any) {
	err, ok := r.(error)
	if !ok {
		err = &coro.PanicError{Value: r}
	}
	if s.logger != nil {
		s.logger.Log(coro.Entry{Message: "scheduler: task panicked", Err: err})
		return
	}
	coro.WarnRateLimited("scheduler.panic", "scheduler: task panicked", err)
}
