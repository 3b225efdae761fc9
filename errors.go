package coro

import (
	"errors"
	"fmt"
)

// Programming errors (spec §7): these indicate caller misuse of the
// Coroutine API and are fatal diagnostics, not recoverable conditions -
// panicking on invariant violation
// rather than returning a value that could be silently ignored.
var (
	// ErrNotResumable is raised when Resume is called on a coroutine whose
	// state is neither Ready nor Suspended.
	ErrNotResumable = errors.New("coro: coroutine is not in a resumable state")

	// ErrNoCurrentCoroutine is raised when Yield is called from a goroutine
	// that is not running as a Coroutine's callable.
	ErrNoCurrentCoroutine = errors.New("coro: yield called with no current coroutine")

	// ErrResetNotTerminated is raised when Reset is called on a coroutine
	// that has not reached the Terminated state.
	ErrResetNotTerminated = errors.New("coro: reset requires a terminated coroutine")
)

// PanicError captures a value recovered from a coroutine's callable, so
// it can be re-thrown into the resumer on the next Resume return, per
// spec §4.3's entry-trampoline contract.
type PanicError struct {
	// Value is whatever recover() returned.
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("coro: coroutine panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error,
// enabling errors.Is/errors.As through the cause chain.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// FatalError marks unrecoverable misuse, raised by panic: a nil callable
// passed to New or Reset, or Pool.Release of a coroutine that has not
// terminated. Callers that reach one of these are expected to crash
// loudly rather than retry.
type FatalError struct {
	Message string
	Cause   error
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("coro: fatal: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("coro: fatal: %s", e.Message)
}

func (e *FatalError) Unwrap() error { return e.Cause }

// WrapError wraps an error with a message, preserving the cause chain so
// errors.Is(result, cause) holds.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
