// Package logger provides the leveled logger injected into incomesync
// components.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger writes prefixed, leveled log lines.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	error *log.Logger
}

// New returns a logger that writes info and warnings to out and errors to
// errOut.
func New(out, errOut io.Writer) *Logger {
	const flags = log.Ldate | log.Ltime | log.Lmsgprefix
	return &Logger{
		info:  log.New(out, "[incomesync] INFO ", flags),
		warn:  log.New(out, "[incomesync] WARN ", flags),
		error: log.New(errOut, "[incomesync] ERROR ", flags),
	}
}

// Default logs to stdout and stderr.
func Default() *Logger {
	return New(os.Stdout, os.Stderr)
}

// Discard drops everything. Used by tests.
func Discard() *Logger {
	return New(io.Discard, io.Discard)
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	_ = l.info.Output(2, msg)
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, args ...any) {
	_ = l.info.Output(2, fmt.Sprintf(format, args...))
}

// Warn logs a recoverable problem.
func (l *Logger) Warn(msg string) {
	_ = l.warn.Output(2, msg)
}

// Warnf logs a formatted recoverable problem.
func (l *Logger) Warnf(format string, args ...any) {
	_ = l.warn.Output(2, fmt.Sprintf(format, args...))
}

// Error logs a failure that degraded functionality.
func (l *Logger) Error(msg string) {
	_ = l.error.Output(2, msg)
}

// Errorf logs a formatted failure.
func (l *Logger) Errorf(format string, args ...any) {
	_ = l.error.Output(2, fmt.Sprintf(format, args...))
}
