package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/rail-logic-core/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "raillogic"

// redacted replaces the value of any attribute whose key looks secret.
const redacted = "[REDACTED]"

// secretKeys are matched against attribute keys, case-insensitively, as
// substrings. "password_hash", "jwt_secret" and "ws_ticket" all match.
var secretKeys = []string{"password", "secret", "token", "ticket", "authorization"}

// Logger is the structured logger handed to every component. It embeds
// *slog.Logger and satisfies the small Logger interfaces declared by the
// dispatcher, control and mqtt packages.
//
// Each Logger derived with With or Component shares its parent's level, so
// SetLevel on the root changes the whole tree at runtime.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates the root logger. cfg.Output selects stdout (default) or
// stderr.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, version, w)
}

// NewWithWriter creates a root logger writing to w; cfg.Output is ignored.
// Format "text" selects slog's text handler, anything else JSON. Every
// entry carries service and version, and attributes with secret-looking
// keys are redacted.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	}
	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler), level: level}
}

// redact is the slog ReplaceAttr hook.
func redact(_ []string, a slog.Attr) slog.Attr {
	if isSecretKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	return a
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// parseLevel maps debug, info, warn (or warning) and error; anything
// else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// SetLevel changes the minimum level for this logger and every logger
// derived from the same root.
func (l *Logger) SetLevel(level string) {
	if l.level != nil {
		l.level.Set(parseLevel(level))
	}
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	if l.level == nil {
		return slog.LevelInfo
	}
	return l.level.Level()
}

// With returns a child logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Component returns a child tagged component=name.
//
//	log.Component("dispatcher").Warn("route not released", "route_id", 12)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used before the configuration is loaded: JSON on
// stdout at info, version "dev".
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
