// Package logger provides structured logging for the crewbill key service.
// It defines the Logger interface consumed by all components together with a
// JSON default implementation; the production zap-backed implementation lives
// in internal/infrastructure/monitoring.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/crewbill/keysvc/pkg/constants"
)

// ================================================================================
// Logger Interface
// ================================================================================

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs a debug message
	Debug(ctx context.Context, message string, fields ...Field)

	// Info logs an informational message
	Info(ctx context.Context, message string, fields ...Field)

	// Warn logs a warning message
	Warn(ctx context.Context, message string, fields ...Field)

	// Error logs an error message
	Error(ctx context.Context, message string, err error, fields ...Field)

	// WithFields creates a new logger with additional base fields
	WithFields(fields ...Field) Logger

	// WithComponent creates a new logger for a specific component
	WithComponent(component string) Logger
}

// ================================================================================
// Field Type for Structured Logging
// ================================================================================

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Time creates a time field
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339)}
}

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any type
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ================================================================================
// Sensitive Value Masking
// ================================================================================

var sensitiveKeys = []string{
	"secret",
	"password",
	"token",
	"authorization",
	"secret_material",
}

// SanitizeValue masks values for keys that may carry secret material.
// Key secret material must never reach a log line in full.
func SanitizeValue(key string, value interface{}) interface{} {
	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			if str, ok := value.(string); ok && len(str) > 0 {
				return maskString(str)
			}
			return "***REDACTED***"
		}
	}
	return value
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}

// ================================================================================
// Default JSON Implementation
// ================================================================================

type jsonLogger struct {
	level      constants.LogLevel
	output     io.Writer
	component  string
	baseFields []Field
}

type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// NewLogger creates a Logger writing JSON lines to the given writer
func NewLogger(level constants.LogLevel, output io.Writer) Logger {
	if output == nil {
		output = os.Stdout
	}
	return &jsonLogger{level: level, output: output}
}

// NewDefaultLogger creates a logger with default settings (stdout, info level)
func NewDefaultLogger() Logger {
	return NewLogger(constants.LogLevelInfo, os.Stdout)
}

var levelRank = map[constants.LogLevel]int{
	constants.LogLevelDebug: 0,
	constants.LogLevelInfo:  1,
	constants.LogLevelWarn:  2,
	constants.LogLevelError: 3,
	constants.LogLevelFatal: 4,
}

func (l *jsonLogger) enabled(level constants.LogLevel) bool {
	return levelRank[level] >= levelRank[l.level]
}

func (l *jsonLogger) Debug(ctx context.Context, message string, fields ...Field) {
	if l.enabled(constants.LogLevelDebug) {
		l.log(ctx, constants.LogLevelDebug, message, fields...)
	}
}

func (l *jsonLogger) Info(ctx context.Context, message string, fields ...Field) {
	if l.enabled(constants.LogLevelInfo) {
		l.log(ctx, constants.LogLevelInfo, message, fields...)
	}
}

func (l *jsonLogger) Warn(ctx context.Context, message string, fields ...Field) {
	if l.enabled(constants.LogLevelWarn) {
		l.log(ctx, constants.LogLevelWarn, message, fields...)
	}
}

func (l *jsonLogger) Error(ctx context.Context, message string, err error, fields ...Field) {
	if l.enabled(constants.LogLevelError) {
		if err != nil {
			fields = append(fields, Err(err))
		}
		l.log(ctx, constants.LogLevelError, message, fields...)
	}
}

func (l *jsonLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.baseFields)+len(fields))
	merged = append(merged, l.baseFields...)
	merged = append(merged, fields...)
	return &jsonLogger{
		level:      l.level,
		output:     l.output,
		component:  l.component,
		baseFields: merged,
	}
}

func (l *jsonLogger) WithComponent(component string) Logger {
	return &jsonLogger{
		level:      l.level,
		output:     l.output,
		component:  component,
		baseFields: l.baseFields,
	}
}

func (l *jsonLogger) log(ctx context.Context, level constants.LogLevel, message string, fields ...Field) {
	entry := logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     strings.ToUpper(string(level)),
		Component: l.component,
		Message:   message,
		Fields:    make(map[string]interface{}),
	}

	if ctx != nil {
		if requestID := ctx.Value(constants.ContextKeyRequestID); requestID != nil {
			entry.Fields["request_id"] = requestID
		}
	}

	for _, field := range l.baseFields {
		entry.Fields[field.Key] = SanitizeValue(field.Key, field.Value)
	}
	for _, field := range fields {
		entry.Fields[field.Key] = SanitizeValue(field.Key, field.Value)
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.output, "[%s] %s: %s (marshal error: %v)\n",
			entry.Timestamp, entry.Level, message, err)
		return
	}
	fmt.Fprintln(l.output, string(jsonData))
}
