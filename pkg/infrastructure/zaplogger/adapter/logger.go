package adapter

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mateusmacedo/go-boarding/pkg/application"
)

// RequestIDKey is the context key whose string value is attached to every entry.
type RequestIDKey struct{}

type zapAppLoggerAdapter struct {
	zapLogger *zap.Logger
}

// NewZapAppLogger builds a JSON production logger writing to stdout. level
// accepts zap level names ("debug", "info", ...); unknown names mean info.
func NewZapAppLogger(appName, level string) (application.AppLogger, error) {
	config := zap.NewProductionConfig()
	config.InitialFields = map[string]interface{}{"app": appName}
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	zapLogger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return NewFromZap(zapLogger), nil
}

// NewFromZap wraps an existing zap logger.
func NewFromZap(zapLogger *zap.Logger) application.AppLogger {
	return &zapAppLoggerAdapter{zapLogger: zapLogger.WithOptions(zap.AddCallerSkip(1))}
}

func (l *zapAppLoggerAdapter) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.zapLogger.Info(msg, convertFields(ctx, fields)...)
}

func (l *zapAppLoggerAdapter) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.zapLogger.Debug(msg, convertFields(ctx, fields)...)
}

func (l *zapAppLoggerAdapter) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.zapLogger.Error(msg, convertFields(ctx, fields)...)
}

// Trace has no zap counterpart and is emitted at debug level.
func (l *zapAppLoggerAdapter) Trace(ctx context.Context, msg string, fields map[string]interface{}) {
	l.zapLogger.Debug(msg, convertFields(ctx, fields)...)
}

func convertFields(ctx context.Context, fields map[string]interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)+1)

	if ctx != nil {
		if requestID, ok := ctx.Value(RequestIDKey{}).(string); ok {
			zapFields = append(zapFields, zap.String("requestID", requestID))
		}
	}

	for k, v := range fields {
		if err, ok := v.(error); ok {
			zapFields = append(zapFields, zap.NamedError(k, err))
			continue
		}
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return zapFields
}
