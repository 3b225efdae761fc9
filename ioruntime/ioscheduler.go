package ioruntime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/gocoro"
)

// DefaultPollTimeoutMs is spec.md §6's "Default epoll wait idle timeout:
// 5000 ms", used whenever the timer set is empty.
const DefaultPollTimeoutMs = 5000

var (
	// ErrNoCurrentCoroutine is returned by AddEvent when no callback was
	// supplied and the calling goroutine has no current coroutine to
	// register as the awaiter.
	ErrNoCurrentCoroutine = errors.New("ioruntime: add_event with no callback requires a current coroutine")
)

// Scheduler is the subset of scheduler.Scheduler the I/O scheduler
// drives: dispatch for ready waiters and expired timers, plus the
// lifecycle methods spec.md §4.9's start/stop delegate to. Declared
// here (rather than importing the scheduler package) so ioruntime has
// no dependency on it; scheduler.Scheduler satisfies this interface
// structurally.
type Scheduler interface {
	Start()
	Stop()
	ScheduleCoroutine(c *coro.Coroutine)
	ScheduleClosure(fn func())
}

// IOScheduler is spec.md §4.9: it owns a Scheduler, a Poller, a
// TimerSet, and an FdTable, and runs a dedicated I/O goroutine.
type IOScheduler struct {
	sched  Scheduler
	poller *Poller
	timers *TimerSet
	fds    *FdTable
	wake   *wakePipe

	stopping atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// New constructs an IOScheduler bound to sched for dispatch.
func New(sched Scheduler) (*IOScheduler, error) {
	poller, err := NewPoller()
	if err != nil {
		return nil, err
	}
	wake, err := newWakePipe()
	if err != nil {
		_ = poller.Close()
		return nil, err
	}

	s := &IOScheduler{
		sched:  sched,
		poller: poller,
		timers: NewTimerSet(),
		fds:    NewFdTable(),
		wake:   wake,
		done:   make(chan struct{}),
	}

	if err := poller.AddEvent(wake.fdNum(), EventRead, nil); err != nil {
		_ = poller.Close()
		_ = wake.close()
		return nil, err
	}
	return s, nil
}

// Start starts the underlying Scheduler, then spawns the I/O goroutine.
func (s *IOScheduler) Start() {
	s.sched.Start()
	go s.loop()
}

// Stop sets the stopping flag, wakes the I/O goroutine, joins it, then
// stops the inner Scheduler. Safe to call multiply.
func (s *IOScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.wake.signal()
		<-s.done
		s.sched.Stop()
	})
}

// AddEvent registers event on fd, auto-creating its FdContext. If
// callback is non-nil it is stored as the wait-slot's closure; otherwise
// the calling goroutine's current coroutine (coro.Current) is stored as
// the awaiter, rescheduled via sched.ScheduleCoroutine on readiness -
// never resumed directly from the I/O goroutine, since that would block
// it on the coroutine the way spec.md §5 forbids.
func (s *IOScheduler) AddEvent(fd int, event EventMask, callback func()) error {
	ctx, _ := s.fds.Lookup(fd, true)

	var w Waiter
	if callback != nil {
		w = Waiter{Closure: callback}
	} else {
		c := coro.Current()
		if c == nil {
			return ErrNoCurrentCoroutine
		}
		w = Waiter{Resume: func() { s.sched.ScheduleCoroutine(c) }}
	}

	before := ctx.Mask()
	ctx.SetWaiter(event, w)
	after := ctx.AddEvent(event)

	var err error
	if before == 0 {
		err = s.poller.AddEvent(fd, after, ctx)
	} else {
		err = s.poller.ModEvent(fd, after)
	}
	if err != nil {
		ctx.DelEvent(event)
		return err
	}
	return nil
}

// DelEvent removes event from fd's mask without firing its waiter.
func (s *IOScheduler) DelEvent(fd int, event EventMask) error {
	ctx, ok := s.fds.Lookup(fd, false)
	if !ok {
		return nil
	}
	mask := ctx.DelEvent(event)
	return s.syncPollerMask(fd, mask)
}

// CancelEvent removes event from fd's mask, firing its waiter first, per
// spec.md §4.9.
func (s *IOScheduler) CancelEvent(fd int, event EventMask) error {
	ctx, ok := s.fds.Lookup(fd, false)
	if !ok {
		return nil
	}
	ctx.CancelEvent(event)
	return s.syncPollerMask(fd, ctx.Mask())
}

// CancelAll fires and removes every pending event on fd, per spec.md
// §4.9's "cancel_all(fd)".
func (s *IOScheduler) CancelAll(fd int) error {
	ctx, ok := s.fds.Lookup(fd, false)
	if !ok {
		return nil
	}
	ctx.CancelEvent(EventRead | EventWrite)
	s.fds.Reset(fd)
	return s.poller.DelEvent(fd)
}

func (s *IOScheduler) syncPollerMask(fd int, mask EventMask) error {
	if mask == 0 {
		s.fds.Reset(fd)
		return s.poller.DelEvent(fd)
	}
	return s.poller.ModEvent(fd, mask)
}

// FdContext returns the FdContext for fd, auto-creating it if
// autoCreate is set, for callers (the hook layer) that need direct
// access to its flags/timeouts beyond AddEvent/DelEvent/CancelEvent.
func (s *IOScheduler) FdContext(fd int, autoCreate bool) (*FdContext, bool) {
	return s.fds.Lookup(fd, autoCreate)
}

// CloseFd removes fd entirely: cancels any pending events (firing their
// waiters), resets its FdContext, and unregisters it from the poller.
// Per spec.md §4.10's close() policy, this runs before the caller
// invokes the real close(2).
func (s *IOScheduler) CloseFd(fd int) {
	_ = s.CancelAll(fd)
}

// AddTimer delegates to the timer set and wakes the I/O goroutine so it
// recomputes its wait window, per spec.md §4.9.
func (s *IOScheduler) AddTimer(delayMs int64, recurring bool, callback func()) *Timer {
	t := s.timers.Add(nowMs(), delayMs, recurring, callback)
	s.wake.signal()
	return t
}

// AddConditionTimer delegates to the timer set's conditional variant,
// per spec.md §6's add_condition_timer external-interface entry: the
// callback only runs if weakCond still reports true at fire time.
func (s *IOScheduler) AddConditionTimer(delayMs int64, recurring bool, weakCond func() bool, callback func()) *Timer {
	t := s.timers.AddCondition(nowMs(), delayMs, recurring, weakCond, callback)
	s.wake.signal()
	return t
}

// loop is the I/O goroutine's main loop, per spec.md §4.9.
func (s *IOScheduler) loop() {
	defer close(s.done)
	for !s.stopping.Load() {
		timeout := DefaultPollTimeoutMs
		if next, ok := s.timers.NextFireMs(); ok {
			d := int(next - nowMs())
			if d < 0 {
				d = 0
			}
			if d < timeout {
				timeout = d
			}
		}

		ready, err := s.poller.Wait(timeout)
		if err != nil {
			continue // reactor loop errors are non-fatal, per spec.md §7
		}

		for _, r := range ready {
			if r.Opaque == nil {
				s.wake.drain()
				continue
			}
			ctx := r.Opaque.(*FdContext)
			events := r.Events
			if events&(EventError|EventHangup) != 0 {
				events |= EventRead | EventWrite
			}
			ctx.TriggerEvent(events)
		}

		for _, cb := range s.timers.ListExpiredCallbacks(nowMs()) {
			cb := cb
			s.sched.ScheduleClosure(cb)
		}
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
