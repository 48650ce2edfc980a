// Package-level configuration for structured logging: a small interface
// that external frameworks (zerolog, logrus, or this package's own
// logiface/stumpy wiring) can implement, plus a low-overhead built-in
// implementation for basic usage.
//
// Design Decision: Package-level global default is appropriate here because
// the runtime's own internals (task panic recovery) need somewhere to log
// without threading a Logger through every constructor.

package asyncflow

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

// SetDefaultLogger sets the logger consulted by runtime internals (e.g. a
// recovered task panic) when no per-task logger was configured.
func SetDefaultLogger(logger Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

// getDefaultLogger safely retrieves the default logger, falling back to a
// no-op logger if none has been set.
func getDefaultLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}

// LogLevel is the severity of a log message.
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// Logger is the structured logging interface used by this package. The
// only entry the runtime itself writes is a recovered task panic.
type Logger interface {
	Log(level LogLevel, msg string, fields map[string]any)
	IsEnabled(level LogLevel) bool
}

// DefaultLogger implements Logger with a hand-rolled plain-text writer,
// suitable when pulling in logiface/stumpy isn't warranted.
type DefaultLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	out   io.Writer
}

// NewDefaultLogger creates a logger writing to os.Stdout at the given
// minimum level.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return NewWriterLogger(level, os.Stdout)
}

// NewWriterLogger creates a logger writing to any io.Writer.
func NewWriterLogger(level LogLevel, out io.Writer) *DefaultLogger {
	l := &DefaultLogger{out: out}
	l.level.Store(int32(level))
	return l
}

// SetLevel dynamically changes the minimum log level.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// IsEnabled implements Logger.
func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

// Log implements Logger.
func (l *DefaultLogger) Log(level LogLevel, msg string, fields map[string]any) {
	if !l.IsEnabled(level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] %s %s", level, time.Now().Format("15:04:05.000"), msg)
	for k, v := range fields {
		fmt.Fprintf(l.out, " %s=%v", k, v)
	}
	fmt.Fprintln(l.out)
}

// NoOpLogger discards every entry.
type NoOpLogger struct{}

// NewNoOpLogger returns a Logger that discards everything.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (l *NoOpLogger) Log(LogLevel, string, map[string]any) {}
func (l *NoOpLogger) IsEnabled(LogLevel) bool              { return false }

// logifaceLogger adapts a logiface.Logger[*stumpy.Event] to this package's
// Logger interface, so callers that already have a logiface backend set up
// for the rest of their service can plug it straight into the scheduler.
type logifaceLogger struct {
	base *logiface.Logger[*stumpy.Event]
}

// NewLogifaceLogger wires a zero-allocation logiface/stumpy backend as this
// package's Logger, writing newline-delimited structured records to out.
func NewLogifaceLogger(out io.Writer, level LogLevel) Logger {
	l := logiface.New[*stumpy.Event](
		logiface.WithLevel(toLogifaceLevel(level)),
		stumpy.WithStumpy(
			stumpy.WithWriter(out),
			stumpy.WithTimeField("time"),
			stumpy.WithLevelField("level"),
			stumpy.WithMessageField("msg"),
			stumpy.WithErrorField("error"),
		),
	)
	return &logifaceLogger{base: l}
}

func (l *logifaceLogger) IsEnabled(level LogLevel) bool {
	return l.base.Level() >= toLogifaceLevel(level)
}

func (l *logifaceLogger) Log(level LogLevel, msg string, fields map[string]any) {
	b := l.base.Build(toLogifaceLevel(level))
	if !b.Enabled() {
		b.Release()
		return
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			b = b.Err(err)
			continue
		}
		b = b.Any(k, v)
	}
	b.Log(msg)
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
