// Package logging provides a small prefixed key/value logger.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger writes leveled messages with optional key/value pairs.
// A nil *Logger is valid and discards everything, so callers can
// treat logging as strictly optional.
type Logger struct {
	logger *log.Logger
}

// New creates a logger writing to stderr with the given prefix.
func New(prefix string) *Logger {
	return NewWithWriter(prefix, os.Stderr)
}

// NewWithWriter creates a logger writing to w with the given prefix.
func NewWithWriter(prefix string, w io.Writer) *Logger {
	return &Logger{
		logger: log.New(w, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
	}
}

// Debug logs a debug message with key/value pairs.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logKV("DEBUG", msg, keysAndValues...)
}

// Info logs an informational message with key/value pairs.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logKV("INFO", msg, keysAndValues...)
}

// Warn logs a warning message with key/value pairs.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logKV("WARN", msg, keysAndValues...)
}

// Error logs an error message with key/value pairs.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logKV("ERROR", msg, keysAndValues...)
}

func (l *Logger) logKV(level, msg string, keysAndValues ...interface{}) {
	if l == nil {
		return
	}
	kv := ""
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		kv += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.logger.Printf("[%s] %s%s", level, msg, kv)
}
