//go:build linux

package ioruntime_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	coro "github.com/joeycumines/gocoro"
	"github.com/joeycumines/gocoro/ioruntime"
)

// fakeScheduler is a minimal ioruntime.Scheduler double: ScheduleClosure
// runs fn inline on a fresh goroutine, and ScheduleCoroutine resumes c
// on a fresh goroutine - enough to exercise the I/O scheduler's
// dispatch without pulling in the real scheduler package.
type fakeScheduler struct{}

func (fakeScheduler) Start() {}
func (fakeScheduler) Stop()  {}
func (fakeScheduler) ScheduleCoroutine(c *coro.Coroutine) {
	go c.Resume()
}
func (fakeScheduler) ScheduleClosure(fn func()) {
	go fn()
}

// TestIOScheduler_TimerFires covers spec.md scenario 1: a one-shot 200ms
// timer increments a counter exactly once within 400ms.
func TestIOScheduler_TimerFires(t *testing.T) {
	s, err := ioruntime.New(fakeScheduler{})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	var counter atomic.Int64
	fired := make(chan struct{})
	s.AddTimer(200, false, func() {
		counter.Add(1)
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(400 * time.Millisecond):
		t.Fatal("timer never fired")
	}
	assert.Equal(t, int64(1), counter.Load())
}

// TestIOScheduler_RecurringTimer covers spec.md scenario 2: a recurring
// 50ms timer fires 4 or 5 times within 275ms before being cancelled.
func TestIOScheduler_RecurringTimer(t *testing.T) {
	s, err := ioruntime.New(fakeScheduler{})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	var counter atomic.Int64
	timer := s.AddTimer(50, true, func() {
		counter.Add(1)
	})

	time.Sleep(275 * time.Millisecond)
	timer.Cancel()
	time.Sleep(20 * time.Millisecond) // let any in-flight fire settle

	n := counter.Load()
	assert.GreaterOrEqual(t, n, int64(4))
	assert.LessOrEqual(t, n, int64(5))
}

// TestIOScheduler_SocketPairReadiness exercises AddEvent against a real
// epoll instance via a socketpair, independent of the hook layer: the
// test goroutine registers Read readiness with a closure callback (it
// has no current coroutine to register as the awaiter) and observes it
// fire after the peer writes.
func TestIOScheduler_SocketPairReadiness(t *testing.T) {
	s, err := ioruntime.New(fakeScheduler{})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	a, b := fds[0], fds[1]
	defer unix.Close(a)
	defer unix.Close(b)
	require.NoError(t, unix.SetNonblock(a, true))

	fired := make(chan struct{})
	require.NoError(t, s.AddEvent(a, ioruntime.EventRead, func() { close(fired) }))

	_, err = unix.Write(b, []byte("hi"))
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("read readiness never fired")
	}
}

// TestIOScheduler_IdleTimeoutThenLoop covers the boundary behavior: "I/O
// scheduler with no timers and no events must block in epoll for
// exactly the idle timeout, then loop" - approximated here by confirming
// Stop() completes promptly even with nothing registered (i.e. the loop
// is still alive and responsive to the wake signal, not stuck in a
// multi-second poller wait).
func TestIOScheduler_IdleTimeoutThenLoop(t *testing.T) {
	s, err := ioruntime.New(fakeScheduler{})
	require.NoError(t, err)
	s.Start()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly; wake signal failed to interrupt the idle poller wait")
	}
}
