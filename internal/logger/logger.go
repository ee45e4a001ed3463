// Package logger provides a small logging interface for keyup components.
// Packages log debug, info, warn, and error messages without being coupled
// to a specific implementation, and diagnostics always land on stderr so
// machine-readable output on stdout stays clean.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// envLogger writes to stderr. Debug messages are only emitted while
// KEYUP_DEBUG is set, checked per call so the gate can flip mid-process.
type envLogger struct {
	prefix string
	dest   *log.Logger
}

// NewEnvLogger creates a logger that respects the KEYUP_DEBUG environment
// variable. The prefix is prepended to every message (e.g., "[keys]" or
// "[remote]").
func NewEnvLogger(prefix string) Logger {
	return newEnvLogger(os.Stderr, prefix)
}

func newEnvLogger(w io.Writer, prefix string) *envLogger {
	return &envLogger{prefix: prefix, dest: log.New(w, "", log.LstdFlags)}
}

func (l *envLogger) Debug(format string, args ...interface{}) {
	if os.Getenv("KEYUP_DEBUG") == "" {
		return
	}
	l.emit("", format, args)
}

func (l *envLogger) Info(format string, args ...interface{}) {
	l.emit("", format, args)
}

func (l *envLogger) Warn(format string, args ...interface{}) {
	l.emit("WARN: ", format, args)
}

func (l *envLogger) Error(format string, args ...interface{}) {
	l.emit("ERROR: ", format, args)
}

func (l *envLogger) emit(tag, format string, args []interface{}) {
	prefix := l.prefix
	if prefix != "" {
		prefix += " "
	}
	l.dest.Printf(prefix+tag+format, args...)
}

// noopLogger implements Logger but discards all messages.
type noopLogger struct{}

// Noop returns a logger that discards all messages. Components take it as
// the fallback when the caller passes a nil Logger.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})  {}
func (l *noopLogger) Warn(format string, args ...interface{})  {}
func (l *noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for inspection in tests. It is safe
// for concurrent use, so code under test may log from multiple goroutines.
type BufferLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
}

// NewBufferLogger creates a logger that records every message it receives.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{}
}

func (l *BufferLogger) record(level, format string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Debug(format string, args ...interface{}) { l.record("debug", format, args) }
func (l *BufferLogger) Info(format string, args ...interface{})  { l.record("info", format, args) }
func (l *BufferLogger) Warn(format string, args ...interface{})  { l.record("warn", format, args) }
func (l *BufferLogger) Error(format string, args ...interface{}) { l.record("error", format, args) }

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Messages {
		if m.Level == level {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = l.Messages[:0]
}

// defaultLogger is the package-level default, an unprefixed stderr logger.
var defaultLogger Logger = NewEnvLogger("")

// Default returns the package-level default logger.
func Default() Logger {
	return defaultLogger
}

// SetDefault replaces the default logger. The CLI swaps in Noop for
// machine-readable runs so nothing interleaves with the JSON stream.
func SetDefault(l Logger) {
	defaultLogger = l
}
