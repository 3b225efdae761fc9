// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coro

// coroutineOptions holds configuration options for Coroutine creation.
type coroutineOptions struct {
	name       string
	stackSize  int
	sharedSlot *SharedStackSlot
	logger     Logger
}

// --- Coroutine Options ---

// Option configures a Coroutine instance.
type Option interface {
	applyCoroutine(*coroutineOptions)
}

// optionFunc implements Option.
type optionFunc struct {
	applyFunc func(*coroutineOptions)
}

func (o *optionFunc) applyCoroutine(opts *coroutineOptions) {
	o.applyFunc(opts)
}

// WithName sets the coroutine's diagnostic name. Defaults to "" (anonymous).
func WithName(name string) Option {
	return &optionFunc{func(opts *coroutineOptions) {
		opts.name = name
	}}
}

// WithStackSize sets the independent-stack size hint, used only to size
// the crash-capture buffer (see stack.go) since Go manages goroutine
// stacks itself. Defaults to DefaultStackSize (128 KiB), per spec §6.
func WithStackSize(size int) Option {
	return &optionFunc{func(opts *coroutineOptions) {
		opts.stackSize = size
	}}
}

// WithSharedStack binds the coroutine to a slot acquired from a
// SharedStackPool, instead of an independent stack.
func WithSharedStack(slot *SharedStackSlot) Option {
	return &optionFunc{func(opts *coroutineOptions) {
		opts.sharedSlot = slot
	}}
}

// WithLogger attaches a Logger to the coroutine, used to report captured
// panics. A nil logger (the default) is a safe no-op, per logging.go.
func WithLogger(logger Logger) Option {
	return &optionFunc{func(opts *coroutineOptions) {
		opts.logger = logger
	}}
}

// resolveOptions applies Option instances to coroutineOptions.
func resolveOptions(opts []Option) *coroutineOptions {
	cfg := &coroutineOptions{
		stackSize: DefaultStackSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // skip nil options gracefully
		}
		opt.applyCoroutine(cfg)
	}
	return cfg
}
