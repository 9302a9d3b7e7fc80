// Package torclog wraps zap with the teacher's component-scoped,
// WithField-style logger shape, so call sites read the way
// jsturma-joblet/persist/pkg/logger call sites do, while the core is backed
// by go.uber.org/zap rather than a hand-rolled log.Logger wrapper.
package torclog

import (
	"go.uber.org/zap"
)

// Logger is a *zap.SugaredLogger with a name already attached.
type Logger struct {
	*zap.SugaredLogger
}

// New builds the process-wide base logger: JSON encoding and Info level in
// production, console encoding and Debug level otherwise, mirroring zap's
// own NewProduction/NewDevelopment presets.
func New(development bool) (*Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: base.Sugar()}, nil
}

// WithField returns a derived logger carrying one extra structured field,
// matching the teacher's WithField ergonomics.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(key, value)}
}

// WithFields returns a derived logger carrying several extra structured
// fields in one call, matching the teacher's WithFields(keyVals...)
// ergonomics.
func (l *Logger) WithFields(keyVals ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keyVals...)}
}

// Named scopes the logger to a component, e.g. logger.Named("claim-engine").
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name)}
}

// Sync flushes any buffered log entries. Call it once at process shutdown.
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}
