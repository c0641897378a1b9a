// Package monitoring holds the diagnostic logger used by the link loops and
// background workers.
package monitoring

import (
	"fmt"
	"log"
	"sync/atomic"
)

type logFunc func(format string, v ...any)

var current atomic.Pointer[logFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf writes a diagnostic message through the installed logger. It is safe
// to call from any goroutine, including while SetLogger runs.
func Logf(format string, v ...any) {
	(*current.Load())(format, v...)
}

// SetLogger replaces the logger and returns a func restoring the previous
// one. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...any)) (restore func()) {
	if f == nil {
		f = func(string, ...any) {}
	}
	lf := logFunc(f)
	prev := current.Swap(&lf)
	return func() {
		if prev != nil {
			current.Store(prev)
		}
	}
}

// Prefixed returns a logger that prepends prefix to every message.
func Prefixed(prefix string) func(format string, v ...any) {
	return func(format string, v ...any) {
		Logf("%s: %s", prefix, fmt.Sprintf(format, v...))
	}
}
