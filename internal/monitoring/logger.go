// Package monitoring holds the process-wide diagnostic loggers.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level operational logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var diagnostics atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// EnableDiagnostics toggles per-frame diagnostic output through Diagf.
func EnableDiagnostics(on bool) {
	diagnostics.Store(on)
}

// DiagnosticsEnabled reports whether Diagf forwards to Logf.
func DiagnosticsEnabled() bool {
	return diagnostics.Load()
}

// Diagf logs through Logf only when diagnostics are enabled. It is meant for
// high-volume per-frame lines that would drown operational output.
func Diagf(format string, v ...interface{}) {
	if !diagnostics.Load() {
		return
	}
	Logf(format, v...)
}
