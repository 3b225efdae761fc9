// logging.go - structured logging for the coroutine runtime.
//
// Package-level configuration for structured logging, following the
// event-loop logging convention: a nil-safe Logger interface,
// a package-global default accessed under a RWMutex, and an optional
// bridge to github.com/joeycumines/logiface for callers that already use
// it elsewhere in their stack.
//
// Usage:
//   coro.SetLogger(coro.NewLogifaceLogger(myLogifaceLogger))

package coro

import (
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

// SetLogger sets the package-level default Logger, used wherever a
// component was not constructed with an explicit WithLogger option.
func SetLogger(logger Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return noOpLogger{}
}

// Level mirrors logiface.Level's syslog-derived vocabulary, carried over
// (per SPEC_FULL.md §6) from the original runtime's zlog/level.hpp.
type Level = logiface.Level

// Entry is a single structured log record.
type Entry struct {
	Level    Level
	Category string // "reactor", "hook", "scheduler", "coroutine"
	Message  string
	Err      error
	Fields   map[string]any
}

// Logger is the structured logging interface used throughout this
// module. Components hold an optional Logger and skip logging when it
// is nil; the package default, when none is set, is noOpLogger.
type Logger interface {
	Log(Entry)
}

type noOpLogger struct{}

func (noOpLogger) Log(Entry) {}

// logifaceLogger adapts a *logiface.Logger[logiface.Event] to Logger.
type logifaceLogger struct {
	l *logiface.Logger[logiface.Event]
}

// NewLogifaceLogger bridges an existing logiface logger into this
// module's Logger interface, so callers already standardized on logiface
// elsewhere in their stack (e.g. via logiface-stumpy, logiface-zerolog)
// can reuse the same sink here.
func NewLogifaceLogger(l *logiface.Logger[logiface.Event]) Logger {
	return &logifaceLogger{l: l}
}

func (x *logifaceLogger) Log(e Entry) {
	b := x.l.Build(e.Level)
	if b == nil {
		return
	}
	if e.Category != "" {
		b = b.Str("category", e.Category)
	}
	for k, v := range e.Fields {
		b = b.Any(k, v)
	}
	if e.Err != nil {
		b = b.Err(e.Err)
	}
	b.Log(e.Message)
}

// warnLimiter backs the exported helper below, to avoid flooding logs
// with repeated warnings of the same category - grounded on
// catrate.Limiter, already an indirect dependency of the donor eventloop
// module, promoted to direct use here.
var warnLimiter = catrate.NewLimiter(map[time.Duration]int{
	time.Second:      1,
	time.Minute * 10: 20,
})

// WarnRateLimited logs a warning through the global Logger, at most at
// the rate configured by warnLimiter, keyed by category. The scheduler
// uses it to report task panics when it has no Logger of its own.
func WarnRateLimited(category string, message string, err error) {
	if _, ok := warnLimiter.Allow(category); !ok {
		return
	}
	getGlobalLogger().Log(Entry{
		Level:    logiface.LevelWarning,
		Category: category,
		Message:  message,
		Err:      err,
	})
}
