package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with domain-specific helpers while staying thin
type Logger struct {
	*slog.Logger
	config LoggerConfig
}

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// OutputFormat represents the log output format
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      LogLevel     `mapstructure:"level" yaml:"level" json:"level"`
	Format     OutputFormat `mapstructure:"format" yaml:"format" json:"format"`
	AddSource  bool         `mapstructure:"add_source" yaml:"add_source" json:"add_source"`
	Component  string       `mapstructure:"component" yaml:"component" json:"component"`
	Version    string       `mapstructure:"version" yaml:"version" json:"version"`
	TimeFormat string       `mapstructure:"time_format" yaml:"time_format" json:"time_format"`

	// Output defaults to os.Stdout
	Output io.Writer `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Level:      LevelInfo,
		Format:     FormatText,
		Component:  "ipam",
		Version:    "unknown",
		TimeFormat: time.RFC3339,
	}
}

// New creates a new logger with the provided configuration
func New(config LoggerConfig) *Logger {
	if config.TimeFormat == "" {
		config.TimeFormat = time.RFC3339
	}
	level := parseLogLevel(config.Level)

	return &Logger{
		Logger: slog.New(createHandler(config, level)),
		config: config,
	}
}

// NewDevelopment creates a logger optimized for development
func NewDevelopment(component string) *Logger {
	return New(LoggerConfig{
		Level:      LevelDebug,
		Format:     FormatText,
		AddSource:  true,
		Component:  component,
		Version:    "dev",
		TimeFormat: time.Kitchen,
	})
}

// NewProduction creates a logger optimized for production
func NewProduction(component, version string) *Logger {
	return New(LoggerConfig{
		Level:      LevelInfo,
		Format:     FormatJSON,
		Component:  component,
		Version:    version,
		TimeFormat: time.RFC3339,
	})
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4})),
		config: DefaultConfig(),
	}
}

// FromSlog wraps an existing slog logger
func FromSlog(l *slog.Logger, component string) *Logger {
	cfg := DefaultConfig()
	cfg.Component = component
	return &Logger{Logger: l, config: cfg}
}

// Context keys for structured logging
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	OperationKey contextKey = "operation"
	RegionIDKey  contextKey = "region_id"
	CountryKey   contextKey = "country"
)

var contextKeys = []contextKey{RequestIDKey, UserIDKey, OperationKey, RegionIDKey, CountryKey}

// With returns a new logger with additional attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
	}
}

// WithComponent returns a logger scoped to a sub-component
func (l *Logger) WithComponent(name string) *Logger {
	cfg := l.config
	cfg.Component = name
	return &Logger{
		Logger: l.Logger,
		config: cfg,
	}
}

// Component returns the component name the logger is scoped to
func (l *Logger) Component() string {
	return l.config.Component
}

// WithContext extracts logging context and returns a scoped logger
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := extractContextAttrs(ctx)
	attrs = append(attrs, slog.String("component", l.config.Component))
	if l.config.Version != "" {
		attrs = append(attrs, slog.String("version", l.config.Version))
	}

	return &Logger{
		Logger: l.Logger.With(attrsToAny(attrs)...),
		config: l.config,
	}
}

// Unwrap returns the underlying slog.Logger for direct access
func (l *Logger) Unwrap() *slog.Logger {
	return l.Logger
}

// ErrorCtx logs an error with automatic context enrichment
func (l *Logger) ErrorCtx(ctx context.Context, msg string, err error, args ...any) {
	l.WithContext(ctx).Error(msg, append(errorAttrs(err), args...)...)
}

// WarnCtx logs a non-fatal error (validation, capacity) at warn level
func (l *Logger) WarnCtx(ctx context.Context, msg string, err error, args ...any) {
	l.WithContext(ctx).Warn(msg, append(errorAttrs(err), args...)...)
}

func errorAttrs(err error) []any {
	if err == nil {
		return nil
	}
	attrs := []any{slog.String("error", err.Error())}

	if domainErr, ok := apperrors.AsDomainError(err); ok {
		attrs = append(attrs,
			slog.String("error_domain", domainErr.Domain()),
			slog.String("error_code", domainErr.Code()),
			slog.Bool("retryable", domainErr.Retryable()),
		)
		for k, v := range domainErr.Metadata() {
			attrs = append(attrs, slog.Any(metadataKey(k), v))
		}
	}
	return attrs
}

// metadataKey prefixes error metadata that would shadow a context attribute.
func metadataKey(k string) string {
	for _, ck := range contextKeys {
		if k == string(ck) {
			return "error_" + k
		}
	}
	return k
}

// HTTPRequest logs HTTP request/response with smart level selection
func (l *Logger) HTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, args ...any) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	} else if status >= 400 {
		level = slog.LevelWarn
	}

	attrs := []any{
		slog.String("http_method", method),
		slog.String("http_path", path),
		slog.Int("http_status", status),
		slog.Duration("duration_ms", duration),
	}
	attrs = append(attrs, args...)

	msg := fmt.Sprintf("%s %s %d", method, path, status)
	l.WithContext(ctx).Log(ctx, level, msg, attrs...)
}

// DBQuery logs database operations with slow query detection
func (l *Logger) DBQuery(ctx context.Context, operation, table string, duration time.Duration, args ...any) {
	attrs := []any{
		slog.String("db_operation", operation),
		slog.String("db_table", table),
		slog.Duration("duration_ms", duration),
	}
	attrs = append(attrs, args...)

	msg := fmt.Sprintf("%s %s", operation, table)

	if duration > 100*time.Millisecond {
		l.WithContext(ctx).Warn(msg+" (slow)", attrs...)
	} else {
		l.WithContext(ctx).Debug(msg, attrs...)
	}
}

func parseLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(config LoggerConfig, level slog.Level) slog.Handler {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	if config.Format == FormatText {
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: config.TimeFormat,
			AddSource:  config.AddSource,
		})
	}

	return slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	})
}

func extractContextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, key := range contextKeys {
		if val := getFromContext(ctx, key); val != "" {
			attrs = append(attrs, slog.String(string(key), val))
		}
	}
	return attrs
}

func getFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return ""
}

func attrsToAny(attrs []slog.Attr) []any {
	result := make([]any, len(attrs))
	for i, attr := range attrs {
		result[i] = attr
	}
	return result
}

// Context helper functions

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithUserID stores the acting user; the allocator records it as the audit actor.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

func WithRegionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RegionIDKey, id)
}

func WithCountry(ctx context.Context, country string) context.Context {
	return context.WithValue(ctx, CountryKey, country)
}

func GetRequestID(ctx context.Context) string { return getFromContext(ctx, RequestIDKey) }
func GetUserID(ctx context.Context) string    { return getFromContext(ctx, UserIDKey) }
func GetOperation(ctx context.Context) string { return getFromContext(ctx, OperationKey) }
func GetRegionID(ctx context.Context) string  { return getFromContext(ctx, RegionIDKey) }
func GetCountry(ctx context.Context) string   { return getFromContext(ctx, CountryKey) }
