// Package monitoring provides the production observability stack: the
// zap-backed logger, Prometheus metrics and OpenTelemetry tracing.
package monitoring

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crewbill/keysvc/internal/config"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/logger"
)

type zapLogger struct {
	l *zap.Logger
}

// NewZapLogger builds the production logger. Output is JSON lines on stdout;
// the level comes from configuration and falls back to info.
func NewZapLogger(cfg *config.LogConfig) (logger.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	return &zapLogger{zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))}, nil
}

func (z *zapLogger) Debug(ctx context.Context, message string, fields ...logger.Field) {
	z.l.Debug(message, z.convert(ctx, fields)...)
}

func (z *zapLogger) Info(ctx context.Context, message string, fields ...logger.Field) {
	z.l.Info(message, z.convert(ctx, fields)...)
}

func (z *zapLogger) Warn(ctx context.Context, message string, fields ...logger.Field) {
	z.l.Warn(message, z.convert(ctx, fields)...)
}

func (z *zapLogger) Error(ctx context.Context, message string, err error, fields ...logger.Field) {
	if err != nil {
		fields = append(fields, logger.Err(err))
	}
	z.l.Error(message, z.convert(ctx, fields)...)
}

func (z *zapLogger) WithFields(fields ...logger.Field) logger.Logger {
	return &zapLogger{z.l.With(z.convert(context.Background(), fields)...)}
}

func (z *zapLogger) WithComponent(component string) logger.Logger {
	return &zapLogger{z.l.With(zap.String("component", component))}
}

func (z *zapLogger) convert(ctx context.Context, fields []logger.Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)+1)
	if ctx != nil {
		if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok {
			zapFields = append(zapFields, zap.String("request_id", requestID))
		}
	}
	for _, f := range fields {
		zapFields = append(zapFields, zap.Any(f.Key, logger.SanitizeValue(f.Key, f.Value)))
	}
	return zapFields
}

var _ logger.Logger = (*zapLogger)(nil)
