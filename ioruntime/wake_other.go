//go:build !linux

package ioruntime

// wakePipe is the non-Linux stub: a no-op, since Poller itself already
// fails every operation with ErrUnsupportedPlatform.
type wakePipe struct{}

func newWakePipe() (*wakePipe, error) { return &wakePipe{}, nil }
func (w *wakePipe) fdNum() int        { return -1 }
func (w *wakePipe) signal()           {}
func (w *wakePipe) drain()            {}
func (w *wakePipe) close() error      { return nil }
