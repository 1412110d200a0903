package logger

import "context"

// noopLogger discards everything. Used in tests that do not assert on logs.
type noopLogger struct{}

// NewNoopLogger returns a Logger that discards all output
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(context.Context, string, ...Field)        {}
func (noopLogger) Info(context.Context, string, ...Field)         {}
func (noopLogger) Warn(context.Context, string, ...Field)         {}
func (noopLogger) Error(context.Context, string, error, ...Field) {}
func (n noopLogger) WithFields(...Field) Logger                   { return n }
func (n noopLogger) WithComponent(string) Logger                  { return n }
