// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.  A nil *Logger discards everything, so backends
// built without a logger need no nil checks.
type Logger struct {
	level      LogLevel
	scope      string
	sink       *sink
	timestamps bool // if true, prepend wall-clock timestamps
}

// sink is shared by a logger and every scoped child derived from it.
type sink struct {
	mu     sync.Mutex
	output io.Writer
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level:      LogLevel(verbosity),
		sink:       &sink{output: os.Stderr},
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
}

// Scoped returns a child logger whose messages are prefixed with
// "scope: ".  The child shares output and verbosity with l.
func (l *Logger) Scoped(scope string) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	if l.scope != "" {
		scope = l.scope + "/" + scope
	}
	child.scope = scope
	return &child
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	if l != nil {
		l.timestamps = on
	}
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	if l == nil {
		return
	}
	l.sink.mu.Lock()
	l.sink.output = w
	l.sink.mu.Unlock()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	if l == nil {
		return LogQuiet
	}
	return l.level
}

// Enabled reports whether messages at lvl would be written.
func (l *Logger) Enabled(lvl LogLevel) bool {
	return l != nil && l.level >= lvl
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.Enabled(LogNormal) {
		l.write("INF", format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.Enabled(LogNormal) {
		l.write("WRN", format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.Enabled(LogVerbose) {
		l.write("VRB", format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.Enabled(LogDebug) {
		l.write("DBG", format, args...)
	}
}

// Error prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	if l != nil {
		l.write("ERR", format, args...)
	}
}

func (l *Logger) write(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.scope != "" {
		msg = l.scope + ": " + msg
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.timestamps {
		ts := time.Now().Format("15:04:05.000")
		fmt.Fprintf(l.sink.output, "%s [%s] %s\n", ts, level, msg)
	} else {
		fmt.Fprintf(l.sink.output, "[%s] %s\n", level, msg)
	}
}
