// Package monitoring holds the diagnostic logger shared by the controller
// packages. Process-level start/stop messages go through the standard log
// package directly; per-cycle behaviour chatter goes through Logf so it can
// be muted or redirected.
package monitoring

import (
	"log"
	"sync/atomic"
)

type logFunc = func(format string, v ...interface{})

var current atomic.Pointer[logFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf writes a diagnostic line through the installed logger. It defaults to
// log.Printf.
func Logf(format string, v ...interface{}) {
	(*current.Load())(format, v...)
}

// SetLogger replaces the logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	current.Store(&f)
}

// Mute installs a no-op logger and returns a function restoring the previous
// one. Intended for tests and benchmarks of hot paths.
func Mute() (restore func()) {
	prev := current.Load()
	SetLogger(nil)
	return func() { current.Store(prev) }
}
