//go:build linux

package ioruntime

import "golang.org/x/sys/unix"

// wakePipe is the eventfd-based wake mechanism of spec.md §4.9, following
// the create/drain/submit trio common to event-loop reactors that need
// to interrupt an idle epoll_wait - a single eventfd serving as both
// ends.
type wakePipe struct {
	fd  int
	buf [8]byte
}

func newWakePipe() (*wakePipe, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &wakePipe{fd: fd}, nil
}

func (w *wakePipe) fdNum() int { return w.fd }

// signal wakes a blocked Wait call. Write errors (e.g. EAGAIN because a
// signal is already pending) are expected and ignored - a coalesced
// duplicate wake is harmless.
func (w *wakePipe) signal() {
	var one uint64 = 1
	buf := [8]byte{}
	for i := 0; i < 8; i++ {
		buf[i] = byte(one >> (8 * i))
	}
	_, _ = unix.Write(w.fd, buf[:])
}

// drain clears any pending wake signal.
func (w *wakePipe) drain() {
	for {
		if _, err := unix.Read(w.fd, w.buf[:]); err != nil {
			return
		}
	}
}

func (w *wakePipe) close() error {
	return unix.Close(w.fd)
}
