package application

import (
	"context"
	"encoding/json"
)

type AppLogger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})
	Trace(ctx context.Context, msg string, fields map[string]interface{})
}

func LogError(ctx context.Context, logger AppLogger, message string, err error, fields map[string]interface{}) {
	logData := copyFields(fields)
	if err != nil {
		logData["error"] = err.Error()
	}
	logger.Error(ctx, message, logData)
}

func LogInfo(ctx context.Context, logger AppLogger, message string, fields map[string]interface{}) {
	logger.Info(ctx, message, copyFields(fields))
}

func LogDebug(ctx context.Context, logger AppLogger, message string, fields map[string]interface{}) {
	logger.Debug(ctx, message, copyFields(fields))
}

func LogTrace(ctx context.Context, logger AppLogger, message string, fields map[string]interface{}) {
	logger.Trace(ctx, message, copyFields(fields))
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	logData := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		logData[k] = v
	}
	return logData
}

func MarshalPayload[T any](payload T) ([]byte, error) {
	return json.Marshal(payload)
}

// NopLogger discards everything. Used by tests and by components built
// without a logger.
type NopLogger struct{}

func (NopLogger) Info(context.Context, string, map[string]interface{})  {}
func (NopLogger) Debug(context.Context, string, map[string]interface{}) {}
func (NopLogger) Error(context.Context, string, map[string]interface{}) {}
func (NopLogger) Trace(context.Context, string, map[string]interface{}) {}
