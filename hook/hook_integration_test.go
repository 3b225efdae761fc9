package hook_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	coro "github.com/joeycumines/gocoro"
	"github.com/joeycumines/gocoro/hook"
	"github.com/joeycumines/gocoro/ioruntime"
	"github.com/joeycumines/gocoro/scheduler"
)

// newRuntime wires a scheduler.Scheduler and an ioruntime.IOScheduler
// together, starts them, registers io.Stop with t.Cleanup, and returns
// the pair plus a Hook bound to them.
func newRuntime(t *testing.T, workers int) (*scheduler.Scheduler, *ioruntime.IOScheduler, *hook.Hook) {
	t.Helper()
	sched := scheduler.New(workers, "test")
	io, err := ioruntime.New(sched)
	require.NoError(t, err)
	io.Start()
	t.Cleanup(io.Stop)
	return sched, io, hook.New(io)
}

// TestHook_SocketPairReadSuspends covers spec.md scenario 3: a
// nonblocking socketpair, a reader coroutine that parks on EAGAIN, and a
// writer that wakes it via the I/O scheduler's readiness dispatch.
func TestHook_SocketPairReadSuspends(t *testing.T) {
	s, _, h := newRuntime(t, 1)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	a, b := fds[0], fds[1]
	defer h.Close(a)
	defer h.Close(b)
	require.NoError(t, unix.SetNonblock(a, true))
	require.NoError(t, unix.SetNonblock(b, true))

	done := make(chan struct{})
	var n int
	var readErr error
	var buf [16]byte

	c := coro.New(func() {
		hook.Enable()
		defer hook.Disable()
		n, readErr = h.Read(a, buf[:])
		close(done)
	})
	s.ScheduleCoroutine(c)

	// Give the reader a chance to park on EAGAIN before we write.
	time.Sleep(20 * time.Millisecond)

	writer := coro.New(func() {
		hook.Enable()
		defer hook.Disable()
		_, werr := h.Write(b, []byte("HELLO"))
		assert.NoError(t, werr)
	})
	s.ScheduleCoroutine(writer)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader never resumed")
	}
	require.NoError(t, readErr)
	assert.Equal(t, 5, n)
	assert.Equal(t, "HELLO", string(buf[:5]))
}

// TestHook_SleepIsCooperative covers spec.md scenario 4: 10 coroutines
// each sleeping 1s under a single-worker scheduler complete in well
// under 10s of serial wall time, since the sleeps are all driven by one
// shared timer set rather than blocking the worker's OS thread.
func TestHook_SleepIsCooperative(t *testing.T) {
	sched := scheduler.New(1, "test")
	io, err := ioruntime.New(sched)
	require.NoError(t, err)
	io.Start()
	defer io.Stop()
	h := hook.New(io)

	const n = 10
	done := make(chan struct{}, n)
	start := time.Now()
	for i := 0; i < n; i++ {
		c := coro.New(func() {
			hook.Enable()
			defer hook.Disable()
			h.Sleep(time.Second)
			done <- struct{}{}
		})
		sched.ScheduleCoroutine(c)
	}

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("not all sleepers completed")
		}
	}
	assert.LessOrEqual(t, time.Since(start), 1200*time.Millisecond)
}

// TestHook_ConnectTimeout covers spec.md scenario 6: a nonblocking
// connect to an unroutable address, with SO_SNDTIMEO set to 100ms via
// the hook, must return ETIMEDOUT within ~100-200ms.
func TestHook_ConnectTimeout(t *testing.T) {
	sched := scheduler.New(1, "test")
	io, err := ioruntime.New(sched)
	require.NoError(t, err)
	io.Start()
	defer io.Stop()
	h := hook.New(io)

	fd, err := h.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer h.Close(fd)

	require.NoError(t, h.SetTimeout(fd, ioruntime.EventWrite, 100*time.Millisecond))

	done := make(chan error, 1)
	start := time.Now()
	c := coro.New(func() {
		hook.Enable()
		defer hook.Disable()
		// 10.255.255.1 is a standard unroutable-for-test address (TEST-NET
		// adjacent, no ARP response on typical CI networks).
		sa := &unix.SockaddrInet4{Port: 9, Addr: [4]byte{10, 255, 255, 1}}
		done <- h.Connect(fd, sa, 100*time.Millisecond)
	})
	sched.ScheduleCoroutine(c)

	select {
	case connErr := <-done:
		elapsed := time.Since(start)
		assert.ErrorIs(t, connErr, hook.ErrTimeout)
		assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
		assert.LessOrEqual(t, elapsed, 500*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("connect never timed out")
	}
}
