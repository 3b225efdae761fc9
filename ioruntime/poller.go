//go:build linux

// Package ioruntime implements spec.md §4.6-§4.9: the epoll poller, fd
// table/context, timer manager, and I/O scheduler that back the hook
// layer's cooperative syscalls.
package ioruntime

import (
	"sync"

	"golang.org/x/sys/unix"
)

// EventMask is the subset of {Read, Write} spec.md's fd context tracks.
type EventMask uint32

const (
	// EventRead is readiness-for-read.
	EventRead EventMask = 1 << iota
	// EventWrite is readiness-for-write.
	EventWrite
	// EventError is an error condition; poller dispatch treats it (and
	// EventHangup) as readiness for both Read and Write, per spec.md
	// §4.9's "on error/hangup bits trigger both Read and Write so
	// waiters see EOF."
	EventError
	// EventHangup is peer hangup.
	EventHangup
)

// ReadyEvent is one readiness notification returned by Wait: the fd's
// mask of ready bits and the opaque tag registered alongside it (the fd
// context pointer, or nil for the wake pipe - spec.md §4.7).
type ReadyEvent struct {
	Events EventMask
	Opaque any
}

// Poller is spec.md §4.7's thin epoll wrapper.
type Poller struct {
	epfd int

	mu   sync.RWMutex
	tags map[int]any // fd -> opaque tag, for attaching it to EpollEvent results

	events []unix.EpollEvent
}

// NewPoller creates and initializes an epoll instance.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{
		epfd:   epfd,
		tags:   make(map[int]any),
		events: make([]unix.EpollEvent, 256),
	}, nil
}

// AddEvent registers fd for mask, tagging it with opaque (spec.md §4.7's
// "add_event(fd, mask, opaque)").
func (p *Poller) AddEvent(fd int, mask EventMask, opaque any) error {
	p.mu.Lock()
	p.tags[fd] = opaque
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: toEpoll(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		p.mu.Lock()
		delete(p.tags, fd)
		p.mu.Unlock()
		return err
	}
	return nil
}

// ModEvent updates the registered mask for fd.
func (p *Poller) ModEvent(fd int, mask EventMask) error {
	ev := unix.EpollEvent{Events: toEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// DelEvent unregisters fd entirely.
func (p *Poller) DelEvent(fd int) error {
	p.mu.Lock()
	delete(p.tags, fd)
	p.mu.Unlock()
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks up to timeoutMs (negative blocks indefinitely) and returns
// the ready entries, per spec.md §4.7.
func (p *Poller) Wait(timeoutMs int) ([]ReadyEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]ReadyEvent, 0, n)
	p.mu.RLock()
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		out = append(out, ReadyEvent{
			Events: fromEpoll(p.events[i].Events),
			Opaque: p.tags[fd],
		})
	}
	p.mu.RUnlock()
	return out, nil
}

// Close releases the epoll fd.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}

func toEpoll(mask EventMask) uint32 {
	var e uint32
	if mask&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if mask&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpoll(e uint32) EventMask {
	var mask EventMask
	if e&unix.EPOLLIN != 0 {
		mask |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		mask |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		mask |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		mask |= EventHangup
	}
	return mask
}
