package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Levels beyond the four slog ships with. Notice sits between info and warn and
// is the default for an unattended ingester; critical sits above error.
const (
	LevelNotice   = slog.Level(2)
	LevelCritical = slog.Level(12)
)

// Levels lists the accepted level names in increasing severity.
var Levels = []string{"debug", "info", "notice", "warning", "error", "critical"}

type sessionKey struct{}

// Logger wraps slog.Logger to provide context-aware structured logging.
// It automatically extracts the pipeline session ID from the context.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger writing to stdout with the specified level and format.
// format can be "json" or "text" (default is json).
func New(level slog.Level, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level, format string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location for errors and above
		AddSource:   level <= slog.LevelError,
		ReplaceAttr: replaceLevel,
	}

	switch format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// replaceLevel renders the custom levels by name instead of "INFO+2".
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch level {
	case LevelNotice:
		a.Value = slog.StringValue("NOTICE")
	case LevelCritical:
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}

// Default returns the default logger (uses slog.Default).
func Default() *Logger {
	return &Logger{Logger: slog.Default()}
}

// ContextWithSession returns a context carrying the pipeline session ID.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the session ID stored in ctx, or "".
func SessionFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok {
		return id
	}
	return ""
}

// WithContext returns a logger that extracts contextual information from ctx.
// It automatically includes the session ID if present in the context.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	if id := SessionFromContext(ctx); id != "" {
		return l.Logger.With(Session(id))
	}
	return l.Logger
}

// InfoContext logs at Info level with context-aware fields.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).InfoContext(ctx, msg, args...)
}

// NoticeContext logs at Notice level with context-aware fields.
func (l *Logger) NoticeContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Log(ctx, LevelNotice, msg, args...)
}

// WarnContext logs at Warn level with context-aware fields.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).WarnContext(ctx, msg, args...)
}

// ErrorContext logs at Error level with context-aware fields.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).ErrorContext(ctx, msg, args...)
}

// CriticalContext logs at Critical level with context-aware fields.
func (l *Logger) CriticalContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Log(ctx, LevelCritical, msg, args...)
}

// DebugContext logs at Debug level with context-aware fields.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).DebugContext(ctx, msg, args...)
}

// With returns a new logger with the given attributes added.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithGroup returns a new logger with the given group name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{Logger: l.Logger.WithGroup(name)}
}

// Notice logs msg at notice level on a plain slog.Logger.
func Notice(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelNotice, msg, args...)
}

// Critical logs msg at critical level on a plain slog.Logger.
func Critical(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelCritical, msg, args...)
}

// ParseLevel converts a string log level to slog.Level.
// Valid values are listed in Levels; "warn" is accepted as an alias of "warning".
// Returns LevelNotice for invalid values.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "notice":
		return LevelNotice
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return LevelCritical
	default:
		return LevelNotice
	}
}

// ValidateLevel reports an error for names ParseLevel would silently replace.
func ValidateLevel(level string) error {
	if level == "warn" {
		return nil
	}
	for _, l := range Levels {
		if l == level {
			return nil
		}
	}
	return fmt.Errorf("invalid log level %q (valid: %s)", level, strings.Join(Levels, ", "))
}

// Open resolves a log destination: "-" (or "") is stdout, "syslog" is the local
// syslog daemon, anything else is a file opened for appending.
func Open(dest, tag string) (io.WriteCloser, error) {
	switch dest {
	case "", "-":
		return nopCloser{os.Stdout}, nil
	case "syslog":
		return openSyslog(tag)
	default:
		f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", dest, err)
		}
		return f, nil
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// SetDefault sets the default logger for the application.
// This affects both slog.Default() and log package functions.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
