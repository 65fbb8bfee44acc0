package monitoring

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/contentsdk/internal/config"
	"github.com/turtacn/contentsdk/pkg/logger"
)

// ZapLogger implements logger.Logger on zap. Every field passes through
// logger.Sanitize, and the level can change at runtime.
type ZapLogger struct {
	base  *zap.Logger
	level zap.AtomicLevel
}

var _ logger.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a logger writing to out, or stderr when out is nil.
// cfg.Format selects the "json" (default) or "console" encoder.
func NewZapLogger(cfg config.LogConfig, out io.Writer) (*ZapLogger, error) {
	if out == nil {
		out = os.Stderr
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level.SetLevel(parsed)
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	return &ZapLogger{
		base:  zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)),
		level: level,
	}, nil
}

// SetLevel changes the minimum level of this logger and every logger derived from it.
func (l *ZapLogger) SetLevel(level string) error {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(parsed)
	return nil
}

func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...logger.Field) {
	l.base.Debug(msg, convertFields(ctx, fields)...)
}

func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...logger.Field) {
	l.base.Info(msg, convertFields(ctx, fields)...)
}

func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...logger.Field) {
	l.base.Warn(msg, convertFields(ctx, fields)...)
}

func (l *ZapLogger) Error(ctx context.Context, msg string, err error, fields ...logger.Field) {
	zapFields := convertFields(ctx, fields)
	if err != nil {
		zapFields = append(zapFields, zap.Error(err))
	}
	l.base.Error(msg, zapFields...)
}

func (l *ZapLogger) WithFields(fields ...logger.Field) logger.Logger {
	return &ZapLogger{base: l.base.With(convertFields(context.Background(), fields)...), level: l.level}
}

func (l *ZapLogger) WithComponent(component string) logger.Logger {
	return &ZapLogger{base: l.base.With(zap.String("component", component)), level: l.level}
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

func convertFields(ctx context.Context, fields []logger.Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)+1)
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			zapFields = append(zapFields, zap.String("trace_id", sc.TraceID().String()))
		}
	}
	for _, f := range fields {
		f = logger.Sanitize(f)
		zapFields = append(zapFields, zap.Any(f.Key, f.Value))
	}
	return zapFields
}
