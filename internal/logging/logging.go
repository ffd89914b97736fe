// Package logging defines the small structured-logging interface every
// fbbus-gateway component depends on, backed by go.uber.org/zap.
package logging

import "go.uber.org/zap"

// Logger is the logging surface the core and its collaborators depend on.
// Components never import zap directly, so a component can be tested with
// a no-op Logger without dragging in the zap dependency tree.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	With(fields ...Field) Logger
}

// Field is a key/value pair attached to every subsequent log line from a
// Logger returned by With.
type Field struct {
	Key   string
	Value any
}

func F(key string, value any) Field { return Field{Key: key, Value: value} }

// zapLogger adapts *zap.SugaredLogger to the Logger interface above.
type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a production zap.Logger (JSON, info level) wrapped as a
// Logger. Callers should defer Sync() via the returned closer.
func New() (Logger, func(), error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, func() {}, err
	}
	return &zapLogger{s: z.Sugar()}, func() { _ = z.Sync() }, nil
}

// NewDevelopment builds a human-readable, debug-level logger suitable for
// local runs and tests.
func NewDevelopment() (Logger, func(), error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, func() {}, err
	}
	return &zapLogger{s: z.Sugar()}, func() { _ = z.Sync() }, nil
}

func (l *zapLogger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }

func (l *zapLogger) With(fields ...Field) Logger {
	kv := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return &zapLogger{s: l.s.With(kv...)}
}

// Nop is a Logger that discards everything, used in unit tests that don't
// care about log output.
type Nop struct{}

func (Nop) Debugf(string, ...any) {}
func (Nop) Infof(string, ...any)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Errorf(string, ...any) {}
func (n Nop) With(...Field) Logger { return n }
