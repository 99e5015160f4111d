// Package obslog provides leveled logging for the telemetry core.
package obslog

import (
	"log"
	"os"
)

// Logger provides structured, leveled logging on top of the standard
// library logger.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	error *log.Logger
	debug *log.Logger
}

// New creates a logger instance tagged with the given component prefix.
func New(prefix string) *Logger {
	flags := log.LstdFlags | log.Lshortfile
	tag := "[" + prefix + "] "
	return &Logger{
		info:  log.New(os.Stdout, "[INFO] "+tag, flags),
		warn:  log.New(os.Stdout, "[WARN] "+tag, flags),
		error: log.New(os.Stderr, "[ERROR] "+tag, flags),
		debug: log.New(os.Stdout, "[DEBUG] "+tag, flags),
	}
}

// Info logs an info message.
func (l *Logger) Info(format string, v ...interface{}) {
	l.info.Printf(format, v...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, v ...interface{}) {
	l.warn.Printf(format, v...)
}

// Error logs an error message.
func (l *Logger) Error(format string, v ...interface{}) {
	l.error.Printf(format, v...)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.debug.Printf(format, v...)
}

// Default is a process-wide logger for code that doesn't carry its own
// injected Logger.
var Default = New("telemetry-core")
