// Package logging defines the pluggable Logger interface every PCG
// component depends on, keeping packages free of any concrete logging
// library import.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the interface every internal package logs through.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

// zlogLogger adapts zerolog.Logger to the Logger interface.
type zlogLogger struct {
	z zerolog.Logger
}

// NewLogger builds a Logger that writes structured JSON lines to w at or
// above minLevel.
func NewLogger(w io.Writer, minLevel zerolog.Level) Logger {
	z := zerolog.New(w).Level(minLevel).With().Timestamp().Logger()
	return &zlogLogger{z: z}
}

// NewStdLogger builds a Logger writing a human-readable console format to
// stdout, convenient for the CLI.
func NewStdLogger(minLevel zerolog.Level) Logger {
	console := zerolog.ConsoleWriter{Out: os.Stdout}
	z := zerolog.New(console).Level(minLevel).With().Timestamp().Logger()
	return &zlogLogger{z: z}
}

func (l *zlogLogger) event(e *zerolog.Event, msg string, keyvals ...any) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, keyvals[i+1])
	}
	e.Msg(msg)
}

func (l *zlogLogger) Debug(msg string, keyvals ...any) { l.event(l.z.Debug(), msg, keyvals...) }
func (l *zlogLogger) Info(msg string, keyvals ...any)  { l.event(l.z.Info(), msg, keyvals...) }
func (l *zlogLogger) Warn(msg string, keyvals ...any)  { l.event(l.z.Warn(), msg, keyvals...) }
func (l *zlogLogger) Error(msg string, keyvals ...any) { l.event(l.z.Error(), msg, keyvals...) }

// With returns a new Logger with keyvals attached to every subsequent
// record.
func (l *zlogLogger) With(keyvals ...any) Logger {
	ctx := l.z.With()
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, keyvals[i+1])
	}
	return &zlogLogger{z: ctx.Logger()}
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any)    {}
func (nopLogger) Info(string, ...any)     {}
func (nopLogger) Warn(string, ...any)     {}
func (nopLogger) Error(string, ...any)    {}
func (n nopLogger) With(...any) Logger    { return n }

// NopLogger returns a Logger that discards every message, used in tests.
func NopLogger() Logger { return nopLogger{} }
