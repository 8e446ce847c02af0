package estatemcp

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// ErrorLogField is the key used for error fields in logs.
const ErrorLogField = "error"

// Logger defines the common logging methods used across the package.
// Implementations wrap a concrete logging backend.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
	WithErr(err error) Logger
}

// LogrusLogger implements Logger on top of logrus.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps a logrus.Logger; nil falls back to the standard one.
func NewLogrusLogger(logger *logrus.Logger) Logger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

func (l *LogrusLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *LogrusLogger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *LogrusLogger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *LogrusLogger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *LogrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *LogrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *LogrusLogger) WithContext(ctx context.Context) Logger {
	return &LogrusLogger{entry: l.entry.WithContext(ctx)}
}

func (l *LogrusLogger) WithErr(err error) Logger {
	return &LogrusLogger{entry: l.entry.WithError(err)}
}

// ZapLogger implements Logger on top of zap's sugared logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps a zap.Logger; nil falls back to zap's production config.
func NewZapLogger(logger *zap.Logger) Logger {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

func (l *ZapLogger) Debug(args ...interface{})                 { l.sugar.Debug(args...) }
func (l *ZapLogger) Info(args ...interface{})                  { l.sugar.Info(args...) }
func (l *ZapLogger) Warn(args ...interface{})                  { l.sugar.Warn(args...) }
func (l *ZapLogger) Error(args ...interface{})                 { l.sugar.Error(args...) }
func (l *ZapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *ZapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *ZapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *ZapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

func (l *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return &ZapLogger{sugar: l.sugar.With(kv...)}
}

func (l *ZapLogger) WithContext(ctx context.Context) Logger { return l }

func (l *ZapLogger) WithErr(err error) Logger {
	return &ZapLogger{sugar: l.sugar.With(ErrorLogField, err)}
}

// NullLogger discards everything; used in tests.
type NullLogger struct{}

// NewNullLogger returns a logger that does nothing.
func NewNullLogger() Logger { return &NullLogger{} }

func (l *NullLogger) Debug(args ...interface{})                          {}
func (l *NullLogger) Info(args ...interface{})                           {}
func (l *NullLogger) Warn(args ...interface{})                           {}
func (l *NullLogger) Error(args ...interface{})                          {}
func (l *NullLogger) Debugf(format string, args ...interface{})          {}
func (l *NullLogger) Infof(format string, args ...interface{})           {}
func (l *NullLogger) Warnf(format string, args ...interface{})           {}
func (l *NullLogger) Errorf(format string, args ...interface{})          {}
func (l *NullLogger) WithFields(fields map[string]interface{}) Logger    { return l }
func (l *NullLogger) WithContext(ctx context.Context) Logger             { return l }
func (l *NullLogger) WithErr(err error) Logger                           { return l }
