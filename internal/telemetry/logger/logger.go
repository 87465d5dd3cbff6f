package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the logger handed to every server component.
//
// WithContext binds a context whose request and connection IDs are added
// to each record, so a connection or request logger carries them without
// repeating With calls.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is json (default) or text; console is an alias for text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// AddSource adds the source position to each record.
	AddSource bool
}

// DefaultConfig returns the configuration used before the server config
// is loaded.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

// level is shared by every logger built with New, so SetLevel applies to
// loggers already handed out.
var level = new(slog.LevelVar)

// New builds a logger from cfg and sets the shared level.
func New(cfg Config) (Logger, error) {
	level.Set(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	var base slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		base = slog.NewTextHandler(out, opts)
	default:
		base = slog.NewJSONHandler(out, opts)
	}
	return wrap(base), nil
}

// Nop returns a logger that discards everything. It leaves the shared
// level alone.
func Nop() Logger {
	return wrap(slog.DiscardHandler)
}

func wrap(h slog.Handler) *slogLogger {
	return &slogLogger{l: slog.New(contextHandler{h}), ctx: context.Background()}
}

// SetLevel changes the level of every logger built with New.
func SetLevel(s string) {
	level.Set(parseLevel(s))
}

// GetLevel returns the shared level name.
func GetLevel() string {
	switch l := level.Level(); {
	case l <= slog.LevelDebug:
		return "debug"
	case l <= slog.LevelInfo:
		return "info"
	case l <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type slogLogger struct {
	l   *slog.Logger
	ctx context.Context
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.DebugContext(s.ctx, msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.InfoContext(s.ctx, msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.WarnContext(s.ctx, msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.ErrorContext(s.ctx, msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...), ctx: s.ctx}
}

func (s *slogLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &slogLogger{l: s.l, ctx: ctx}
}

// contextHandler adds the IDs found in the record's context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := ConnIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("conn_id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	l, _ := New(DefaultConfig())
	SetDefault(l)
}

// SetDefault sets the logger FromContext falls back to.
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger.Store(&l)
	}
}

// Default returns the process default logger.
func Default() Logger {
	return *defaultLogger.Load()
}
