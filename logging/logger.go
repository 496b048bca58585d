package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" (any case) to a LogLevel.
// Unknown values yield LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface for RAGMesh. Arguments are
// slog style alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// MeshLogger wraps slog.Logger adding component / session scoping and
// helpers for the events RAGMesh cares about (retrieval, model calls,
// routing). With* methods return cheap copies.
type MeshLogger struct {
	logger       *slog.Logger
	level        LogLevel
	component    string
	sessionID    string
	invocationID string
}

// LoggerConfig configures construction of a MeshLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration on stderr.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds a MeshLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *MeshLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &MeshLogger{logger: slog.New(handler), level: cfg.Level, component: cfg.Component}
}

// NewSlogLogger creates a MeshLogger with the given level, format and source flag.
func NewSlogLogger(level LogLevel, format string, addSource bool) *MeshLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// Discard returns a MeshLogger that drops every record.
func Discard() *MeshLogger {
	return NewLogger(&LoggerConfig{Level: LogLevelError, Output: io.Discard})
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent sets the logical component (router, specialist, engine...).
func (l *MeshLogger) WithComponent(c string) *MeshLogger {
	nl := *l
	nl.component = c
	return &nl
}

// WithSession attaches session and invocation identifiers.
func (l *MeshLogger) WithSession(sid, iid string) *MeshLogger {
	nl := *l
	nl.sessionID = sid
	nl.invocationID = iid
	return &nl
}

func (l *MeshLogger) scope() []any {
	attrs := make([]any, 0, 6)
	if l.component != "" {
		attrs = append(attrs, "component", l.component)
	}
	if l.sessionID != "" {
		attrs = append(attrs, "session_id", l.sessionID)
	}
	if l.invocationID != "" {
		attrs = append(attrs, "invocation_id", l.invocationID)
	}
	return attrs
}

func (l *MeshLogger) log(level slog.Level, msg string, args ...any) {
	if level < slogLevel(l.level) {
		return
	}
	l.logger.Log(context.Background(), level, msg, append(l.scope(), args...)...)
}

// Debug logs at debug level.
func (l *MeshLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *MeshLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *MeshLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *MeshLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogRetrieval records one knowledge base lookup.
func (l *MeshLogger) LogRetrieval(agent, knowledgeID string, passages int, topScore float64, dur time.Duration, err error) {
	args := []any{"agent", agent, "knowledge_id", knowledgeID, "passages", passages, "top_score", topScore, "duration", dur}
	if err != nil {
		l.Warn("Knowledge search failed", append(args, "error", err.Error())...)
		return
	}
	l.Info("Knowledge search completed", args...)
}

// LogModelCall records model call latency, token usage and success.
func (l *MeshLogger) LogModelCall(model string, tokens int, dur time.Duration, err error) {
	args := []any{"model", model, "token_count", tokens, "duration", dur, "success", err == nil}
	if err != nil {
		l.Error("Model call failed", append(args, "error", err.Error())...)
		return
	}
	l.Info("Model call completed", args...)
}

// LogRouting records a routing decision.
func (l *MeshLogger) LogRouting(selected []string, useFallback bool, scores map[string]float64) {
	l.Info("Routing completed", "selected", selected, "use_fallback", useFallback, "scores", scores)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
