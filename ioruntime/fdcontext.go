package ioruntime

import "sync"

// Waiter is an fd-context wait-slot occupant: spec.md §3 requires
// exactly one of {coroutine handle, closure} populated, never both.
type Waiter struct {
	Resume  func() // reschedules a suspended coroutine
	Closure func() // invoked inline on readiness
}

func (w Waiter) populated() bool {
	return w.Resume != nil || w.Closure != nil
}

func (w Waiter) bothPopulated() bool {
	return w.Resume != nil && w.Closure != nil
}

func (w Waiter) fire() {
	switch {
	case w.Resume != nil:
		w.Resume()
	case w.Closure != nil:
		w.Closure()
	}
}

// FdContext is spec.md §3/§4.6's per-fd record: fd, the registered event
// mask, and one wait-slot per event bit.
type FdContext struct {
	fd int

	mu    sync.Mutex
	mask  EventMask
	read  Waiter
	write Waiter

	// Flags below back the hook layer's bookkeeping (spec.md's system
	// overview: "user/system nonblocking flags, send/recv timeouts").
	// systemNonblocking is true once the hook layer has forced O_NONBLOCK
	// on the underlying fd; userNonblocking tracks what the caller
	// believes the fd's blocking mode to be, independently of that.
	systemNonblocking bool
	userNonblocking   bool
	recvTimeoutMs     int64
	sendTimeoutMs     int64
}

// NewFdContext constructs an FdContext for fd, with an empty mask.
func NewFdContext(fd int) *FdContext {
	return &FdContext{fd: fd}
}

// FD returns the underlying file descriptor.
func (c *FdContext) FD() int { return c.fd }

// AddEvent adds event to the registered mask and returns the new mask.
// Per spec.md §4.6, the caller must populate the wait-slot (SetWaiter)
// before the corresponding poller registration completes.
func (c *FdContext) AddEvent(event EventMask) EventMask {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mask |= event
	return c.mask
}

// SetWaiter populates the wait-slot for event. w must have exactly one
// of Resume/Closure set; violating that is the "design requires exactly
// one be populated" invariant of spec.md §4.6, and panics rather than
// silently picking one.
func (c *FdContext) SetWaiter(event EventMask, w Waiter) {
	if w.bothPopulated() {
		panic("ioruntime: fd wait-slot cannot hold both a coroutine and a closure")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if event&EventRead != 0 {
		c.read = w
	}
	if event&EventWrite != 0 {
		c.write = w
	}
}

// DelEvent clears event's bit and resets its wait-slot, a no-op if the
// bit was already absent. Returns the new mask.
func (c *FdContext) DelEvent(event EventMask) EventMask {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mask&event == 0 {
		return c.mask
	}
	c.mask &^= event
	if event&EventRead != 0 {
		c.read = Waiter{}
	}
	if event&EventWrite != 0 {
		c.write = Waiter{}
	}
	return c.mask
}

// CancelEvent clears event's bit and wait-slot, then dispatches whatever
// was populated there - outside the lock, per spec.md §4.6's "the lock
// must be released before user code runs." A no-op if the bit is absent.
func (c *FdContext) CancelEvent(event EventMask) {
	c.mu.Lock()
	if c.mask&event == 0 {
		c.mu.Unlock()
		return
	}
	var fired []Waiter
	if event&EventRead != 0 {
		fired = append(fired, c.read)
		c.read = Waiter{}
	}
	if event&EventWrite != 0 {
		fired = append(fired, c.write)
		c.write = Waiter{}
	}
	c.mask &^= event
	c.mu.Unlock()

	for _, w := range fired {
		if w.populated() {
			w.fire()
		}
	}
}

// TriggerEvent is called by the I/O scheduler when readiness fires for
// events (possibly both Read and Write bits, e.g. on error/hangup).
// Each populated wait-slot among events is moved out and cleared under
// the lock, then dispatched after the lock is released - moving first
// so a re-registration from inside the callback can't be clobbered by
// this trigger's own slot reset (spec.md §4.6).
func (c *FdContext) TriggerEvent(events EventMask) {
	c.mu.Lock()
	var fired []Waiter
	if events&EventRead != 0 && c.mask&EventRead != 0 {
		if c.read.populated() {
			fired = append(fired, c.read)
		}
		c.read = Waiter{}
		c.mask &^= EventRead
	}
	if events&EventWrite != 0 && c.mask&EventWrite != 0 {
		if c.write.populated() {
			fired = append(fired, c.write)
		}
		c.write = Waiter{}
		c.mask &^= EventWrite
	}
	c.mu.Unlock()

	for _, w := range fired {
		w.fire()
	}
}

// Mask returns the currently registered event mask.
func (c *FdContext) Mask() EventMask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mask
}

// SetSystemNonblocking records that the hook layer has forced O_NONBLOCK
// on this fd.
func (c *FdContext) SetSystemNonblocking(v bool) {
	c.mu.Lock()
	c.systemNonblocking = v
	c.mu.Unlock()
}

// SystemNonblocking reports whether the hook layer forced O_NONBLOCK.
func (c *FdContext) SystemNonblocking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.systemNonblocking
}

// SetUserNonblocking records the blocking mode the caller believes is in
// effect, per spec.md §4.10's fcntl/ioctl interception.
func (c *FdContext) SetUserNonblocking(v bool) {
	c.mu.Lock()
	c.userNonblocking = v
	c.mu.Unlock()
}

// UserNonblocking reports the caller-visible blocking mode.
func (c *FdContext) UserNonblocking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userNonblocking
}

// SetTimeoutMs stores the SO_RCVTIMEO/SO_SNDTIMEO-equivalent timeout (in
// milliseconds, 0 meaning none) for event's direction.
func (c *FdContext) SetTimeoutMs(event EventMask, ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if event&EventRead != 0 {
		c.recvTimeoutMs = ms
	}
	if event&EventWrite != 0 {
		c.sendTimeoutMs = ms
	}
}

// TimeoutMs returns the stored timeout for event's direction, 0 if none.
func (c *FdContext) TimeoutMs(event EventMask) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if event&EventRead != 0 {
		return c.recvTimeoutMs
	}
	return c.sendTimeoutMs
}
