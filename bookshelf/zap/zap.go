package zap

import (
	"context"

	logpkg "github.com/LerianStudio/lib-bookshelf/bookshelf/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger implements log.Logger on top of a *zap.Logger.
type Logger struct {
	logger      *zap.Logger
	atomicLevel zap.AtomicLevel
}

var _ logpkg.Logger = (*Logger)(nil)

// Wrap adapts an existing zap logger. The level handle is left unset, so Level
// reports the zero AtomicLevel.
func Wrap(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) must() *zap.Logger {
	if l == nil || l.logger == nil {
		return zap.NewNop()
	}

	return l.logger
}

// Log dispatches to the matching zap level. When ctx carries a valid span
// context, trace_id and span_id are appended.
func (l *Logger) Log(ctx context.Context, level logpkg.Level, msg string, fields ...logpkg.Field) {
	zapFields := toZapFields(fields)

	if ctx != nil {
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			zapFields = append(zapFields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
	}

	if ce := l.must().Check(toZapLevel(level), msg); ce != nil {
		ce.Write(zapFields...)
	}
}

// With returns a child logger with additional structured fields.
//
//nolint:ireturn
func (l *Logger) With(fields ...logpkg.Field) logpkg.Logger {
	return &Logger{
		logger:      l.must().With(toZapFields(fields)...),
		atomicLevel: l.level(),
	}
}

// WithGroup returns a child logger that nests subsequent fields under name.
//
//nolint:ireturn
func (l *Logger) WithGroup(name string) logpkg.Logger {
	return &Logger{
		logger:      l.must().With(zap.Namespace(name)),
		atomicLevel: l.level(),
	}
}

// Enabled reports whether the logger would emit an entry at level.
func (l *Logger) Enabled(level logpkg.Level) bool {
	return l.must().Core().Enabled(toZapLevel(level))
}

// Sync flushes buffered entries, giving up when ctx is done.
func (l *Logger) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)

	go func() {
		done <- l.must().Sync()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Raw returns the underlying zap logger.
func (l *Logger) Raw() *zap.Logger {
	return l.must()
}

// Level returns the runtime-adjustable level handle.
func (l *Logger) Level() zap.AtomicLevel {
	return l.level()
}

func (l *Logger) level() zap.AtomicLevel {
	if l == nil {
		return zap.AtomicLevel{}
	}

	return l.atomicLevel
}

func toZapLevel(level logpkg.Level) zapcore.Level {
	switch level {
	case logpkg.LevelDebug:
		return zapcore.DebugLevel
	case logpkg.LevelInfo:
		return zapcore.InfoLevel
	case logpkg.LevelWarn:
		return zapcore.WarnLevel
	case logpkg.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// toZapFields maps typed fields onto zap constructors so encoders keep the
// native type; unknown values fall back to zap.Any.
func toZapFields(fields []logpkg.Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))

	for i, f := range fields {
		switch v := f.Value.(type) {
		case error:
			zapFields[i] = zap.NamedError(f.Key, v)
		default:
			zapFields[i] = zap.Any(f.Key, v)
		}
	}

	return zapFields
}
