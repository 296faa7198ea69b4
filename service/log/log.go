package log

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

var defaultLogger *zap.Logger

func init() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if os.Getenv("DEBUG") != "" {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	var err error
	if defaultLogger, err = config.Build(zap.AddStacktrace(zapcore.FatalLevel)); err != nil {
		panic(err)
	}
}

// Logger returns the logger attached to the context, or the process logger.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a context whose logger carries the given key/value pairs.
func With(ctx context.Context, keysAndValues ...interface{}) context.Context {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return context.WithValue(ctx, loggerKey{}, Logger(ctx).With(fields...))
}

// Fatal logs at fatal level with the process logger and exits.
func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Fatal(msg, fields...)
}

// Sync flushes buffered log entries. Call before exiting.
func Sync() {
	_ = defaultLogger.Sync()
}
