package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/assocworks/sepa-billing/internal/domain/ports"
)

// ZapLogger adapts a zap.Logger to the ports.Logger interface
type ZapLogger struct {
	log *zap.Logger
}

// New builds a zap-backed logger for the given level. Development mode
// switches to the console encoder.
func New(level string, development bool) (*ZapLogger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)

	log, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &ZapLogger{log: log}, nil
}

// NewNop returns a logger that discards everything. Test helper.
func NewNop() *ZapLogger {
	return &ZapLogger{log: zap.NewNop()}
}

// Sync flushes buffered entries
func (l *ZapLogger) Sync() error {
	return l.log.Sync()
}

func (l *ZapLogger) Info(msg string, fields ...ports.Field)  { l.log.Info(msg, convert(fields)...) }
func (l *ZapLogger) Error(msg string, fields ...ports.Field) { l.log.Error(msg, convert(fields)...) }
func (l *ZapLogger) Warn(msg string, fields ...ports.Field)  { l.log.Warn(msg, convert(fields)...) }
func (l *ZapLogger) Debug(msg string, fields ...ports.Field) { l.log.Debug(msg, convert(fields)...) }

func convert(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out[i] = zap.String(f.Key, v)
		case int:
			out[i] = zap.Int(f.Key, v)
		case float64:
			out[i] = zap.Float64(f.Key, v)
		case bool:
			out[i] = zap.Bool(f.Key, v)
		case error:
			out[i] = zap.NamedError(f.Key, v)
		default:
			out[i] = zap.Any(f.Key, v)
		}
	}
	return out
}
