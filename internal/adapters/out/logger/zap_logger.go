package logger

import (
	"fmt"

	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger - JSON-логгер для окружений кроме local
type ZapLogger struct {
	base   *zap.Logger
	module string
	fields out.LogFields
}

func NewZapLogger(level out.LogLevel, outputPaths []string) (*ZapLogger, error) {
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "event",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel(level)),
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	base, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, fmt.Errorf("logger.zap.build_failed: %w", err)
	}

	return NewZapLoggerFrom(base), nil
}

// NewZapLoggerFrom оборачивает готовый *zap.Logger (например, zaptest/observer)
func NewZapLoggerFrom(base *zap.Logger) *ZapLogger {
	return &ZapLogger{
		base:   base,
		fields: make(out.LogFields),
	}
}

func zapLevel(level out.LogLevel) zapcore.Level {
	switch level {
	case out.LogLevelDebug:
		return zap.DebugLevel
	case out.LogLevelWarn:
		return zap.WarnLevel
	case out.LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func (l *ZapLogger) WithFields(fields out.LogFields) out.LoggerPort {
	merged := make(out.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ZapLogger{base: l.base, module: l.module, fields: merged}
}

func (l *ZapLogger) WithModule(module string) out.LoggerPort {
	return &ZapLogger{base: l.base, module: module, fields: l.fields}
}

func (l *ZapLogger) Debug(event string, fields out.LogFields) {
	l.log(zap.DebugLevel, event, fields)
}

func (l *ZapLogger) Info(event string, fields out.LogFields) {
	l.log(zap.InfoLevel, event, fields)
}

func (l *ZapLogger) Warn(event string, fields out.LogFields) {
	l.log(zap.WarnLevel, event, fields)
}

func (l *ZapLogger) Error(event string, fields out.LogFields) {
	l.log(zap.ErrorLevel, event, fields)
}

func (l *ZapLogger) log(level zapcore.Level, event string, fields out.LogFields) {
	ce := l.base.Check(level, event)
	if ce == nil {
		return
	}

	zf := make([]zap.Field, 0, len(l.fields)+len(fields)+1)
	if l.module != "" {
		zf = append(zf, zap.String("module", l.module))
	}
	for k, v := range l.fields {
		zf = append(zf, zap.Any(k, v))
	}
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	ce.Write(zf...)
}

func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}
