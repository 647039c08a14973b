// Package logging provides the formatted stderr logger used across tasak.
//
// All informational and status output goes through this logger so stdout
// stays reserved for tool results.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Logger writes leveled, optionally colored messages to a single writer.
type Logger struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	color   bool
}

// NewLogger creates a logger writing to stderr.
func NewLogger(verbose, color bool) *Logger {
	return NewLoggerWithWriter(verbose, color, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to w. Used by tests.
func NewLoggerWithWriter(verbose, color bool, w io.Writer) *Logger {
	return &Logger{w: w, verbose: verbose, color: color}
}

// SetVerbose toggles verbose output at runtime.
func (l *Logger) SetVerbose(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = v
}

func (l *Logger) print(color, prefix, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if l.color && color != "" {
		fmt.Fprintf(l.w, "%s%s%s%s\n", color, prefix, msg, colorReset)
	} else {
		fmt.Fprintf(l.w, "%s%s\n", prefix, msg)
	}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.print(colorCyan, "", format, args...)
}

// InfoVerbose logs an informational message only in verbose mode.
func (l *Logger) InfoVerbose(format string, args ...interface{}) {
	if !l.isVerbose() {
		return
	}
	l.Info(format, args...)
}

// Success logs a success message.
func (l *Logger) Success(format string, args ...interface{}) {
	l.print(colorGreen, "", format, args...)
}

// Warning logs a warning.
func (l *Logger) Warning(format string, args ...interface{}) {
	l.print(colorYellow, "Warning: ", format, args...)
}

// WarningVerbose logs a warning only in verbose mode.
func (l *Logger) WarningVerbose(format string, args ...interface{}) {
	if !l.isVerbose() {
		return
	}
	l.Warning(format, args...)
}

// Error logs an error.
func (l *Logger) Error(format string, args ...interface{}) {
	l.print(colorRed, "Error: ", format, args...)
}

// Request logs an outgoing protocol request in verbose mode.
func (l *Logger) Request(method string, params interface{}) {
	if !l.isVerbose() {
		return
	}
	l.print(colorGray, "-> ", "%s %s", method, compactJSON(params))
}

// Response logs a protocol response in verbose mode.
func (l *Logger) Response(method string, result interface{}) {
	if !l.isVerbose() {
		return
	}
	l.print(colorGray, "<- ", "%s %s", method, compactJSON(result))
}

func (l *Logger) isVerbose() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verbose
}

func compactJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// PrettyJSON renders v as indented JSON, falling back to %+v.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
