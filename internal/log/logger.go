// Package log is the leveled logger used across the visualizer. A single
// global level gates every component logger, so the audio callback can
// call Debugf freely: below the level the call costs one atomic load.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
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
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var currentLevel atomic.Uint32

// sink is swapped atomically so tests can capture output while loops run.
var sink atomic.Pointer[stdlog.Logger]

// exit is replaced in tests so Fatal can be observed.
var exit = os.Exit

func init() {
	SetOutput(os.Stderr)
	SetLevel(LevelInfo)
}

// SetOutput redirects all loggers to w.
func SetOutput(w io.Writer) {
	sink.Store(stdlog.New(w, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds))
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

// Logger writes leveled messages tagged with a component name.
type Logger struct {
	component string
}

// New returns a logger whose lines are prefixed with "component:".
// An empty component logs without a prefix.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) output(level LogLevel, msg string) {
	if l.component != "" {
		msg = l.component + ": " + msg
	}
	// WARN and INFO are padded so messages line up with DEBUG/ERROR.
	pad := " "
	if level == LevelInfo || level == LevelWarn {
		pad = "  "
	}
	sink.Load().Print("[" + level.String() + "]" + pad + msg)
}

// Debugf logs a formatted debug message if the level is appropriate.
func (l *Logger) Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		l.output(LevelDebug, fmt.Sprintf(format, v...))
	}
}

// Infof logs a formatted info message if the level is appropriate.
func (l *Logger) Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		l.output(LevelInfo, fmt.Sprintf(format, v...))
	}
}

// Warnf logs a formatted warning message if the level is appropriate.
func (l *Logger) Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		l.output(LevelWarn, fmt.Sprintf(format, v...))
	}
}

// Errorf logs a formatted error message if the level is appropriate.
func (l *Logger) Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		l.output(LevelError, fmt.Sprintf(format, v...))
	}
}

// Fatalf always logs and then exits the process.
func (l *Logger) Fatalf(format string, v ...any) {
	l.output(LevelFatal, fmt.Sprintf(format, v...))
	exit(1)
}

var std = New("")

// Debugf logs through the unnamed logger.
func Debugf(format string, v ...any) { std.Debugf(format, v...) }

// Infof logs through the unnamed logger.
func Infof(format string, v ...any) { std.Infof(format, v...) }

// Warnf logs through the unnamed logger.
func Warnf(format string, v ...any) { std.Warnf(format, v...) }

// Errorf logs through the unnamed logger.
func Errorf(format string, v ...any) { std.Errorf(format, v...) }

// Fatalf logs through the unnamed logger and exits.
func Fatalf(format string, v ...any) { std.Fatalf(format, v...) }
