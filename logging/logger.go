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

// ParseLevel maps a case-insensitive level name to a LogLevel. Unknown names
// fall back to LogLevelInfo.
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

// Logger defines the minimal logging interface used across agentloop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// LoggerConfig configures construction of a ContextLogger.
type LoggerConfig struct {
	Level          LogLevel
	Format         string // json or text
	Output         io.Writer
	AddSource      bool
	Component      string
	ConversationID string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration writing to stderr.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// ContextLogger wraps slog.Logger adding component / conversation attributes
// and domain helpers for tool calls, model calls and turns. With* methods
// return copies; the receiver is never modified.
type ContextLogger struct {
	logger         *slog.Logger
	component      string
	conversationID string
}

// NewLogger builds a ContextLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *ContextLogger {
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
	return &ContextLogger{logger: slog.New(handler), component: cfg.Component, conversationID: cfg.ConversationID}
}

// NewSlogLogger creates a new ContextLogger with the specified level and format.
func NewSlogLogger(level LogLevel, format string, addSource bool) *ContextLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
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

// WithComponent sets the logical component (flow, session, tool, ...).
func (l *ContextLogger) WithComponent(c string) *ContextLogger {
	nl := *l
	nl.component = c
	return &nl
}

// WithConversation attaches a conversation identifier.
func (l *ContextLogger) WithConversation(id string) *ContextLogger {
	nl := *l
	nl.conversationID = id
	return &nl
}

func (l *ContextLogger) log(level slog.Level, msg string, args ...any) {
	attrs := make([]any, 0, len(args)+4)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.conversationID != "" {
		attrs = append(attrs, slog.String("conversation_id", l.conversationID))
	}
	attrs = append(attrs, args...)
	l.logger.Log(context.Background(), level, msg, attrs...)
}

// Debug logs at debug level.
func (l *ContextLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *ContextLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *ContextLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *ContextLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogToolCall records execution details for a tool invocation.
func (l *ContextLogger) LogToolCall(tool string, dur time.Duration, err error) {
	if err != nil {
		l.log(slog.LevelError, "tool.call.failed", "tool_name", tool, "duration", dur, "error", err.Error())
		return
	}
	l.log(slog.LevelInfo, "tool.call.completed", "tool_name", tool, "duration", dur)
}

// LogModelCall records model call latency and outcome.
func (l *ContextLogger) LogModelCall(model string, dur time.Duration, err error) {
	if err != nil {
		l.log(slog.LevelError, "model.call.failed", "model", model, "duration", dur, "error", err.Error())
		return
	}
	l.log(slog.LevelInfo, "model.call.completed", "model", model, "duration", dur)
}

// LogTurn records aggregate turn metrics.
func (l *ContextLogger) LogTurn(cycles int, dur time.Duration, err error) {
	if err != nil {
		l.log(slog.LevelError, "flow.turn.failed", "cycles", cycles, "duration", dur, "error", err.Error())
		return
	}
	l.log(slog.LevelInfo, "flow.turn.completed", "cycles", cycles, "duration", dur)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards the message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards the message.
func (NoOpLogger) Error(string, ...any) {}
