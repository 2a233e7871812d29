// Package logger is a small structured logger on top of slog that writes
// JSON lines.
package logger

import (
	"io"
	"log/slog"
)

// Namespaces used across kite.
const (
	NsDatabase   = "database"
	NsWAL        = "wal"
	NsPager      = "pager"
	NsTxn        = "txn"
	NsCheckpoint = "checkpoint"
)

// Logger is a custom structured logger on top of slog.Logger
// that logs in JSON format.
type Logger struct {
	slogger *slog.Logger
}

// New creates a new Logger that writes to the given writer at the given
// minimum level. The writer is typically os.Stderr but can be any io.Writer.
func New(writer io.Writer, level slog.Level) Logger {
	slogger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level}))
	return Logger{
		slogger: slogger,
	}
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return New(io.Discard, slog.LevelError)
}

// IsInitialized reports whether the logger was created with New or NewNop.
func (l Logger) IsInitialized() bool {
	return l.slogger != nil
}

// Info logs structured info message.
//
// Accepts a message and a list of key-value pairs to be logged.
func (l Logger) Info(msg string, keyVals ...KV) {
	l.slogger.Info(msg, kvToArgs(keyVals...)...)
}

// InfoNs logs structured info message with a namespace.
//
// The namespace is used to differentiate logs from different parts
// and will be included as the first key-value pair in the log.
func (l Logger) InfoNs(namespace string, msg string, keyVals ...KV) {
	l.slogger.Info(msg, kvToArgsNs(namespace, keyVals...)...)
}

// Debug logs structured debug message.
func (l Logger) Debug(msg string, keyVals ...KV) {
	l.slogger.Debug(msg, kvToArgs(keyVals...)...)
}

// DebugNs logs structured debug message with a namespace.
func (l Logger) DebugNs(namespace string, msg string, keyVals ...KV) {
	l.slogger.Debug(msg, kvToArgsNs(namespace, keyVals...)...)
}

// Warn logs structured warning message.
func (l Logger) Warn(msg string, keyVals ...KV) {
	l.slogger.Warn(msg, kvToArgs(keyVals...)...)
}

// WarnNs logs structured warning message with a namespace.
func (l Logger) WarnNs(namespace string, msg string, keyVals ...KV) {
	l.slogger.Warn(msg, kvToArgsNs(namespace, keyVals...)...)
}

// Error logs structured error message.
func (l Logger) Error(msg string, keyVals ...KV) {
	l.slogger.Error(msg, kvToArgs(keyVals...)...)
}

// ErrorNs logs structured error message with a namespace.
func (l Logger) ErrorNs(namespace string, msg string, keyVals ...KV) {
	l.slogger.Error(msg, kvToArgsNs(namespace, keyVals...)...)
}
