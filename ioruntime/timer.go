package ioruntime

import (
	"container/heap"
	"sync"
	"sync/atomic"
)

// Timer is spec.md §3/§4.8's timer record: next-fire absolute time (ms
// since epoch), interval, recurring flag, cancelled flag, and callback.
type Timer struct {
	id uint64

	nextFireMs int64
	intervalMs int64
	recurring  bool
	cancelled  atomic.Bool
	callback   func()

	index int // heap.Interface bookkeeping
}

// ID returns the timer's identity, used as the heap's tie-break key.
func (t *Timer) ID() uint64 { return t.id }

// Cancel marks the timer cancelled and drops its callback, per spec.md
// §4.8's "cancel() sets the flag and drops the callback." A cancelled
// timer still in the set is dropped unfired when it comes due; a
// callback already returned by ListExpiredCallbacks is not recalled.
func (t *Timer) Cancel() {
	t.cancelled.Store(true)
	t.callback = nil
}

// Cancelled reports whether Cancel has been called.
func (t *Timer) Cancelled() bool { return t.cancelled.Load() }

var timerIDCounter atomic.Uint64

// timerHeap is a container/heap min-heap ordered by (next-fire,
// identity).
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].nextFireMs != h[j].nextFireMs {
		return h[i].nextFireMs < h[j].nextFireMs
	}
	return h[i].id < h[j].id
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// TimerSet is spec.md §3's mutex-guarded set of timers ordered by
// (next-fire, identity).
type TimerSet struct {
	mu sync.Mutex
	h  timerHeap
}

// NewTimerSet constructs an empty TimerSet.
func NewTimerSet() *TimerSet {
	return &TimerSet{}
}

// Add inserts a new timer firing at nowMs+delayMs, optionally recurring
// every delayMs thereafter, and returns it.
func (s *TimerSet) Add(nowMs, delayMs int64, recurring bool, callback func()) *Timer {
	t := &Timer{
		id:         timerIDCounter.Add(1),
		nextFireMs: nowMs + delayMs,
		intervalMs: delayMs,
		recurring:  recurring,
		callback:   callback,
	}
	s.mu.Lock()
	heap.Push(&s.h, t)
	s.mu.Unlock()
	return t
}

// AddCondition inserts a timer like Add, but wraps callback so it fires
// only if weakCond reports true at fire time, per spec.md §4.8's
// add_condition_timer(timeout, cb, weak_cond, recurring). weakCond is
// this rendition's stand-in for the original's weak-pointer upgrade
// check: Go has no weak pointers in general use, so the liveness test
// is whatever the caller's closure captures (e.g. an atomic flag, or a
// still-valid fd context). If weakCond returns false, the callback is
// silently skipped - the timer is still removed (or reinserted, if
// recurring) exactly as if it had fired.
func (s *TimerSet) AddCondition(nowMs, delayMs int64, recurring bool, weakCond func() bool, callback func()) *Timer {
	wrapped := func() {
		if weakCond == nil || weakCond() {
			callback()
		}
	}
	return s.Add(nowMs, delayMs, recurring, wrapped)
}

// Refresh resets t's next-fire to nowMs+t.interval and re-establishes
// heap order, per spec.md §4.8's "refresh() resets next-fire to
// now+interval."
func (s *TimerSet) Refresh(t *Timer, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.nextFireMs = nowMs + t.intervalMs
	if t.index >= 0 {
		heap.Fix(&s.h, t.index)
	}
}

// Reset replaces t's interval and recomputes its next-fire from nowMs,
// per spec.md §4.8's "reset(new_interval) replaces interval and
// recomputes next-fire."
func (s *TimerSet) Reset(t *Timer, nowMs, newIntervalMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.intervalMs = newIntervalMs
	t.nextFireMs = nowMs + newIntervalMs
	if t.index >= 0 {
		heap.Fix(&s.h, t.index)
	}
}

// NextFireMs returns the earliest non-empty next-fire time, and false if
// the set is empty - used by the I/O scheduler to size its poller
// timeout.
func (s *TimerSet) NextFireMs() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.h) == 0 {
		return 0, false
	}
	return s.h[0].nextFireMs, true
}

// ListExpiredCallbacks pops every non-cancelled timer whose next-fire is
// <= nowMs, per spec.md §8's invariant: a one-shot timer is removed, a
// recurring timer's next-fire advances by its interval and is
// reinserted. Cancelled timers encountered along the way are dropped
// without invoking their (already nil) callback. Returns the callbacks
// to invoke, in (next-fire, identity) order.
func (s *TimerSet) ListExpiredCallbacks(nowMs int64) []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var callbacks []func()
	for len(s.h) > 0 && s.h[0].nextFireMs <= nowMs {
		t := heap.Pop(&s.h).(*Timer)
		if t.Cancelled() {
			continue
		}
		if t.callback != nil {
			callbacks = append(callbacks, t.callback)
		}
		if t.recurring {
			t.nextFireMs += t.intervalMs
			heap.Push(&s.h, t)
		}
	}
	return callbacks
}
