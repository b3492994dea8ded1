// Package logging wraps charmbracelet/log with the WithFields/step/stage
// idiom, grounded on the teacher's internal/logger +
// internal/infrastructure/logging charmbracelet/log adapter. The workflow
// Executor is the only component that holds a Logger; Status transitions
// and the Instantiator do not log.
package logging

import (
	"io"
	"os"
	"sort"

	cblog "github.com/charmbracelet/log"
)

// Options configures a Logger at construction.
type Options struct {
	Level  string // debug, info, warn, error; defaults to info
	JSON   bool
	Writer io.Writer // defaults to os.Stderr
}

// Logger adapts charmbracelet/log to the narrow surface the workflow
// package's StatusLogger interface, and the rest of this module, need:
// Info/Debug/Warn/Error plus derived WithFields loggers.
type Logger struct {
	base *cblog.Logger
}

// New constructs a Logger from Options.
func New(opts Options) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	l := cblog.NewWithOptions(w, cblog.Options{
		Formatter:       formatter(opts.JSON),
		ReportTimestamp: true,
	})
	l.SetLevel(parseLevel(opts.Level))

	return &Logger{base: l}
}

func formatter(json bool) cblog.Formatter {
	if json {
		return cblog.JSONFormatter
	}
	return cblog.TextFormatter
}

func parseLevel(level string) cblog.Level {
	switch level {
	case "debug":
		return cblog.DebugLevel
	case "warn":
		return cblog.WarnLevel
	case "error":
		return cblog.ErrorLevel
	default:
		return cblog.InfoLevel
	}
}

// WithFields returns a derived Logger that always carries the supplied
// key/value pairs, sorted for deterministic output.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil || len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return &Logger{base: l.base.With(args...)}
}

// Info implements workflow.StatusLogger.
func (l *Logger) Info(msg string, kv ...any) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Info(msg, kv...)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, kv ...any) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Debug(msg, kv...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, kv ...any) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Warn(msg, kv...)
}

// Error logs at error level, attaching err as a field when present.
func (l *Logger) Error(err error, msg string, kv ...any) {
	if l == nil || l.base == nil {
		return
	}
	if err != nil {
		kv = append(kv, "error", err)
	}
	l.base.Error(msg, kv...)
}
