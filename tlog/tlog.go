// Package tlog is the logging seam the rest of the core calls through.
// It mirrors the teacher's options.go WithLogger/log.SetLogger contract:
// callers may swap the default logger for their own, but every internal
// call site only ever depends on the small Logger interface below.
package tlog

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Logger is the minimal surface the core logs through. Debugf is used for
// high-volume per-message tracing (gated behind env.Debug in the teacher;
// here gated by the logger's own level), Printf for ordinary operational
// lines, Warnf for version-mismatch and dropped-message notices, and Errorf
// for conditions an operator should see.
type Logger interface {
	Debugf(format string, args ...any)
	Printf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type zerologAdapter struct {
	l zerolog.Logger
}

func (z zerologAdapter) Debugf(format string, args ...any) { z.l.Debug().Msgf(format, args...) }
func (z zerologAdapter) Printf(format string, args ...any) { z.l.Info().Msgf(format, args...) }
func (z zerologAdapter) Warnf(format string, args ...any)  { z.l.Warn().Msgf(format, args...) }
func (z zerologAdapter) Errorf(format string, args ...any) { z.l.Error().Msgf(format, args...) }

// NewZerolog builds the default Logger, writing structured console output
// to stderr at info level.
func NewZerolog() Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	return zerologAdapter{l: zl}
}

var current atomic.Value // Logger

func init() {
	current.Store(NewZerolog())
}

// SetLogger overrides the package-level logger, the same role the teacher's
// log.SetLogger plays for nano.WithLogger.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	current.Store(l)
}

// Get returns the currently installed Logger.
func Get() Logger {
	return current.Load().(Logger)
}

func Debugf(format string, args ...any) { Get().Debugf(format, args...) }
func Printf(format string, args ...any) { Get().Printf(format, args...) }
func Warnf(format string, args ...any)  { Get().Warnf(format, args...) }
func Errorf(format string, args ...any) { Get().Errorf(format, args...) }
