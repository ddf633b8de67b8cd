// Package log wraps go-kit's structured logger in the small interface the
// rest of this module calls through, matching the teacher's
// libs/log.Logger usage ("memR.Logger.Info/Error/Debug").
package log

import (
	"io"
	"os"

	kitlog "github.com/go-kit/kit/log"
)

// Logger is the logging surface every component depends on.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	With(keyvals ...interface{}) Logger
}

type tmLogger struct {
	kl kitlog.Logger
}

// NewTMLogger returns a logfmt logger writing to w, synchronized for
// concurrent use by multiple goroutines (dispatcher, transport, rpc).
func NewTMLogger(w io.Writer) Logger {
	kl := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	kl = kitlog.With(kl, "ts", kitlog.DefaultTimestampUTC)
	return &tmLogger{kl: kl}
}

// NewNopLogger discards everything; used as the zero-value default so
// components never need a nil check.
func NewNopLogger() Logger {
	return &tmLogger{kl: kitlog.NewNopLogger()}
}

// NewSyncWriter exists for call-site parity with the teacher's
// log.NewSyncWriter(os.Stdout) idiom.
func NewSyncWriter(w io.Writer) io.Writer {
	return kitlog.NewSyncWriter(w)
}

func (l *tmLogger) Debug(msg string, keyvals ...interface{}) {
	l.log("debug", msg, keyvals...)
}

func (l *tmLogger) Info(msg string, keyvals ...interface{}) {
	l.log("info", msg, keyvals...)
}

func (l *tmLogger) Error(msg string, keyvals ...interface{}) {
	l.log("error", msg, keyvals...)
}

func (l *tmLogger) log(level, msg string, keyvals ...interface{}) {
	kv := append([]interface{}{"level", level, "msg", msg}, keyvals...)
	_ = l.kl.Log(kv...)
}

func (l *tmLogger) With(keyvals ...interface{}) Logger {
	return &tmLogger{kl: kitlog.With(l.kl, keyvals...)}
}

// Default is a process-wide fallback so constructors that forget to inject
// a logger still produce sane output during development.
var Default Logger = NewTMLogger(os.Stdout)
