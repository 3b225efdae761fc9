// Package hook implements spec.md §4.10's cooperative I/O facade: the
// Go-native replacement for transparent POSIX symbol interception (see
// SPEC_FULL.md §5 for why Go requires an explicit facade instead).
// Coroutine-aware callers invoke Read/Write/Connect/Accept/Sleep/... in
// place of the real syscall; this package applies the same readiness,
// timeout, and retry policy the original hook layer applied invisibly.
package hook

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/joeycumines/gocoro"
	"github.com/joeycumines/gocoro/ioruntime"
	"golang.org/x/sys/unix"
)

// ErrTimeout is returned when a hook-induced timeout (§4.10's armed
// timer) fires before the operation completes, spec.md §7's "ETIMEDOUT
// for hook-induced timeouts."
var ErrTimeout error = unix.ETIMEDOUT

// enableFlags tracks the per-goroutine hook-enable flag of spec.md
// §4.10/§4.11 ("the hook's global enable flag is thread-local"),
// discovered the same way coro.Current discovers the current coroutine.
var enableFlags sync.Map // map[uint64]bool

func goroutineID() uint64 {
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

// Enable turns on hooking for the calling goroutine.
func Enable() { enableFlags.Store(goroutineID(), true) }

// Disable turns off hooking for the calling goroutine; hooked calls pass
// straight through to the real syscall.
func Disable() { enableFlags.Delete(goroutineID()) }

// Enabled reports whether hooking is on for the calling goroutine.
func Enabled() bool {
	v, ok := enableFlags.Load(goroutineID())
	return ok && v.(bool)
}

// Hook binds a facade to one IOScheduler, standing in for the original's
// process-wide resolved symbol table + its I/O scheduler reference.
type Hook struct {
	io *ioruntime.IOScheduler
}

// New constructs a Hook dispatching readiness registration through io.
func New(io *ioruntime.IOScheduler) *Hook {
	return &Hook{io: io}
}

// Sleep applies spec.md §4.10's sleep-family policy: when hooking is
// enabled, arm a one-shot timer for d and yield; otherwise block the OS
// thread in the real sleep.
func (h *Hook) Sleep(d time.Duration) {
	if !Enabled() || h.io == nil {
		time.Sleep(d)
		return
	}
	c := coro.Current()
	if c == nil {
		time.Sleep(d)
		return
	}
	h.io.AddTimer(d.Milliseconds(), false, func() { c.Resume() })
	coro.Yield()
}

// Socket creates a socket via the real syscall, then - per spec.md
// §4.10's socket() policy - establishes an fd context for it, forces
// O_NONBLOCK at the OS level, and marks it system-nonblocking while
// leaving the caller's view of its blocking mode untouched.
func (h *Hook) Socket(domain, typ, proto int) (int, error) {
	fd, err := unix.Socket(domain, typ, proto)
	if err != nil || fd < 0 {
		return fd, err
	}
	h.markSocket(fd)
	return fd, nil
}

func (h *Hook) markSocket(fd int) {
	if h.io == nil {
		return
	}
	ctx, _ := h.io.FdContext(fd, true)
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err == nil {
		_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK)
	}
	ctx.SetSystemNonblocking(true)
}

// Connect applies spec.md §4.10's connect() policy: pass through when
// hooking is disabled or the caller already set O_NONBLOCK themselves
// (an fd with no fd context gets one auto-created and is hooked);
// otherwise attempt the connect, and on
// EINPROGRESS register Write readiness (with an optional timeout),
// yield, then resolve via SO_ERROR.
func (h *Hook) Connect(fd int, sa unix.Sockaddr, timeout time.Duration) error {
	_, ok := h.passthroughContext(fd)
	if !ok {
		return unix.Connect(fd, sa)
	}

	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EINPROGRESS) {
		return err
	}

	c := coro.Current()
	if c == nil {
		return err
	}

	var timedOut bool
	var timer *ioruntime.Timer
	if timeout > 0 {
		timer = h.io.AddTimer(timeout.Milliseconds(), false, func() {
			timedOut = true
			_ = h.io.CancelEvent(fd, ioruntime.EventWrite)
		})
	}
	if regErr := h.io.AddEvent(fd, ioruntime.EventWrite, nil); regErr != nil {
		return regErr
	}
	coro.Yield()
	if timer != nil {
		timer.Cancel()
	}
	if timedOut {
		return ErrTimeout
	}

	soErr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil {
		return gerr
	}
	if soErr != 0 {
		return unix.Errno(soErr)
	}
	return nil
}

// Accept applies the generic I/O-hook template (Read readiness, the fd's
// configured recv timeout) to accept(2), then marks the new connection
// as a system-nonblocking socket per spec.md §4.10's accept() policy.
func (h *Hook) Accept(fd int) (int, unix.Sockaddr, error) {
	_, ok := h.passthroughContext(fd)
	if !ok {
		return unix.Accept(fd)
	}

	for {
		nfd, sa, err := unix.Accept(fd)
		if err == nil {
			h.markSocket(nfd)
			return nfd, sa, nil
		}
		if !errors.Is(err, unix.EINTR) {
			if !errors.Is(err, unix.EAGAIN) {
				return nfd, sa, err
			}
			if stop := h.awaitReadiness(fd, ioruntime.EventRead); stop != nil {
				return nfd, sa, stop
			}
		}
	}
}

// Read applies the generic read/write/send/recv template of spec.md
// §4.10 to read(2).
func (h *Hook) Read(fd int, p []byte) (int, error) {
	return h.retry(fd, ioruntime.EventRead, func() (int, error) { return unix.Read(fd, p) })
}

// Write applies the same template to write(2).
func (h *Hook) Write(fd int, p []byte) (int, error) {
	return h.retry(fd, ioruntime.EventWrite, func() (int, error) { return unix.Write(fd, p) })
}

// Recv applies the template to recvfrom(2) with the given flags,
// discarding the sender address.
func (h *Hook) Recv(fd int, p []byte, flags int) (int, error) {
	return h.retry(fd, ioruntime.EventRead, func() (int, error) { n, _, err := unix.Recvfrom(fd, p, flags); return n, err })
}

// Send applies the template to sendto(2) with a nil address (plain
// send).
func (h *Hook) Send(fd int, p []byte, flags int) (int, error) {
	return h.retry(fd, ioruntime.EventWrite, func() (int, error) { return 0, unix.Sendto(fd, p, flags, nil) })
}

// retry is the generic template shared by Read/Write/Recv/Send: pass
// through when hooking is off or the fd is user-nonblocking (an fd with
// no fd context gets one auto-created); otherwise call
// the syscall, retry transparently on EINTR, and on EAGAIN register
// readiness (plus the fd's configured timeout) and yield before
// retrying.
func (h *Hook) retry(fd int, event ioruntime.EventMask, call func() (int, error)) (int, error) {
	_, ok := h.passthroughContext(fd)
	if !ok {
		return call()
	}

	for {
		n, err := call()
		if err == nil {
			return n, nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if !errors.Is(err, unix.EAGAIN) {
			return n, err
		}
		if stop := h.awaitReadiness(fd, event); stop != nil {
			return n, stop
		}
	}
}

// awaitReadiness registers event on fd (with its configured timeout, if
// any) and yields, returning a non-nil error only on timeout or
// registration failure.
func (h *Hook) awaitReadiness(fd int, event ioruntime.EventMask) error {
	ctx, _ := h.io.FdContext(fd, true)
	c := coro.Current()
	if c == nil {
		return nil
	}

	var timedOut bool
	var timer *ioruntime.Timer
	if ms := ctx.TimeoutMs(event); ms > 0 {
		timer = h.io.AddTimer(ms, false, func() {
			timedOut = true
			_ = h.io.CancelEvent(fd, event)
		})
	}
	if err := h.io.AddEvent(fd, event, nil); err != nil {
		return err
	}
	coro.Yield()
	if timer != nil {
		timer.Cancel()
	}
	if timedOut {
		return ErrTimeout
	}
	return nil
}

// Close applies spec.md §4.10's close() policy: remove both Read and
// Write events from the I/O scheduler (firing any outstanding waiters),
// delete the fd context, then call the real close.
func (h *Hook) Close(fd int) error {
	if h.io != nil {
		h.io.CloseFd(fd)
	}
	return unix.Close(fd)
}

// SetNonblocking applies spec.md §4.10's fcntl(F_SETFL)/ioctl(FIONBIO)
// policy: record the caller's intended blocking mode in the fd context,
// while leaving the real descriptor's O_NONBLOCK forced on for sockets
// the hook manages.
func (h *Hook) SetNonblocking(fd int, nonblocking bool) error {
	ctx, _ := h.passthroughContext(fd)
	if ctx == nil {
		return unix.SetNonblock(fd, nonblocking)
	}
	ctx.SetUserNonblocking(nonblocking)
	if ctx.SystemNonblocking() {
		return nil // real fd stays O_NONBLOCK regardless of user intent
	}
	return unix.SetNonblock(fd, nonblocking)
}

// SetTimeout applies spec.md §4.10's setsockopt(SO_RCVTIMEO/SO_SNDTIMEO)
// policy: store the timeout in the fd context for event's direction,
// and pass it through to the OS so getsockopt stays consistent.
func (h *Hook) SetTimeout(fd int, event ioruntime.EventMask, timeout time.Duration) error {
	if ctx, _ := h.passthroughContext(fd); ctx != nil {
		ctx.SetTimeoutMs(event, timeout.Milliseconds())
	}
	opt := unix.SO_RCVTIMEO
	if event&ioruntime.EventWrite != 0 {
		opt = unix.SO_SNDTIMEO
	}
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, opt, &tv)
}

// passthroughContext returns the fd's FdContext and true when hooking
// should apply: enabled, an IOScheduler exists, and the fd is already
// under management (or can be auto-created) and not user-nonblocking.
func (h *Hook) passthroughContext(fd int) (*ioruntime.FdContext, bool) {
	if !Enabled() || h.io == nil {
		return nil, false
	}
	ctx, _ := h.io.FdContext(fd, true)
	if ctx.UserNonblocking() {
		return ctx, false
	}
	return ctx, true
}
