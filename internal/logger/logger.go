// Package logger provides a simple leveled logger for the application.
// It supports three levels: off (no output), normal (info/warn/error),
// and verbose (includes debug). The logger is safe for concurrent use.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Level controls the verbosity of the logger.
type Level int

const (
	// LevelOff disables all log output.
	LevelOff Level = iota
	// LevelNormal enables info, warn, and error output.
	LevelNormal
	// LevelVerbose enables all output including debug.
	LevelVerbose
)

// Logger is a leveled logger. All methods are safe for concurrent use.
type Logger struct {
	mu    *sync.RWMutex
	level *Level
	base  *log.Logger
}

// New creates a logger with the given level, writing to the given output.
// If out is nil, os.Stderr is used.
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}

	base := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "chatgod",
	})

	l := &Logger{mu: &sync.RWMutex{}, level: new(Level), base: base}
	l.SetLevel(level)
	return l
}

// SetLevel changes the log level at runtime. The change is shared with
// every logger derived through With.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.level = level
	l.base.SetLevel(toCharm(level))
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.level
}

// With returns a logger that attaches the given key/value pairs to every
// line, e.g. log.With("slot", 2).
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{mu: l.mu, level: l.level, base: l.base.With(keyvals...)}
}

// Debug logs a message at debug level (only visible in verbose mode).
func (l *Logger) Debug(format string, args ...any) {
	if l.enabled(LevelVerbose) {
		l.base.Debugf(format, args...)
	}
}

// Info logs a message at info level.
func (l *Logger) Info(format string, args ...any) {
	if l.enabled(LevelNormal) {
		l.base.Infof(format, args...)
	}
}

// Warn logs a message at warn level.
func (l *Logger) Warn(format string, args ...any) {
	if l.enabled(LevelNormal) {
		l.base.Warnf(format, args...)
	}
}

// Error logs a message at error level.
func (l *Logger) Error(format string, args ...any) {
	if l.enabled(LevelNormal) {
		l.base.Errorf(format, args...)
	}
}

func (l *Logger) enabled(min Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.level >= min
}

// toCharm maps our three levels onto charmbracelet/log levels. LevelOff is
// handled by enabled(); the backend still needs a sane threshold.
func toCharm(level Level) log.Level {
	switch level {
	case LevelVerbose:
		return log.DebugLevel
	case LevelOff:
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}
