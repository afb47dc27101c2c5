// Package logger is a thin zerolog wrapper. Loggers travel in a context;
// code that finds none there logs through the process-wide default.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes leveled, structured events.
type Logger struct {
	zlog zerolog.Logger
}

// Config selects level, encoding and destination.
type Config struct {
	Level      string // debug, info, warn, error, disabled
	Format     string // json, console
	TimeFormat string // rfc3339, unix, unixms, unixmicro
	Output     io.Writer
}

// DefaultConfig logs info and above as JSON to stderr. Stdout is kept for
// command output.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: "rfc3339",
		Output:     os.Stderr,
	}
}

// New builds a logger from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = timeFormat(cfg.TimeFormat)
	zlog := zerolog.New(out).With().Timestamp().Logger().Level(level(cfg.Level))
	return &Logger{zlog: zlog}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// WithContext returns a copy of ctx carrying l.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.zlog.WithContext(ctx)
}

// FromContext returns the logger carried by ctx, or the global logger.
func FromContext(ctx context.Context) *Logger {
	zlog := zerolog.Ctx(ctx)
	if zlog.GetLevel() == zerolog.Disabled {
		return global
	}
	return &Logger{zlog: *zlog}
}

// With starts a child logger that stamps extra fields on every event.
func (l *Logger) With() *Context {
	return &Context{zctx: l.zlog.With()}
}

// Context accumulates fields for a child logger.
type Context struct {
	zctx zerolog.Context
}

// Str adds a string field.
func (c *Context) Str(key, val string) *Context {
	c.zctx = c.zctx.Str(key, val)
	return c
}

// Logger finishes the child.
func (c *Context) Logger() *Logger {
	return &Logger{zlog: c.zctx.Logger()}
}

// Debug logs msg at debug level.
func (l *Logger) Debug(msg string) {
	l.zlog.Debug().Msg(msg)
}

// DebugWith logs msg at debug level with fields.
func (l *Logger) DebugWith(msg string, fields map[string]interface{}) {
	send(l.zlog.Debug(), msg, fields)
}

// InfoWith logs msg at info level with fields.
func (l *Logger) InfoWith(msg string, fields map[string]interface{}) {
	send(l.zlog.Info(), msg, fields)
}

// ErrorWith logs msg and err at error level with fields.
func (l *Logger) ErrorWith(msg string, err error, fields map[string]interface{}) {
	send(l.zlog.Error().Err(err), msg, fields)
}

// send is a no-op for a nil event, which zerolog returns below the level.
func send(e *zerolog.Event, msg string, fields map[string]interface{}) {
	if e == nil {
		return
	}
	e.Fields(fields).Msg(msg)
}

func level(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func timeFormat(s string) string {
	switch s {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}

var global = New(nil)

// SetGlobal replaces the logger used when a context carries none.
func SetGlobal(l *Logger) {
	global = l
}

// Global returns the logger used when a context carries none.
func Global() *Logger {
	return global
}
