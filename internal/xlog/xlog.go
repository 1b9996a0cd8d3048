// Package xlog is the structured logging facade used throughout streamx.
// Grounded on the teacher's log.go: a package-level Logger var with level
// gating and setters, reworked onto zap instead of log.Printf.
package xlog

import "go.uber.org/zap"

// Level mirrors the teacher's LogLevel enum.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the minimal structured-logging contract streamx depends on.
type Logger interface {
	IsDebugEnabled() bool
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

type zapLogger struct {
	lvl Level
	s   *zap.SugaredLogger
}

func (z *zapLogger) IsDebugEnabled() bool { return z.lvl <= LevelDebug }

func (z *zapLogger) Debugw(msg string, kv ...interface{}) {
	if z.lvl > LevelDebug {
		return
	}
	z.s.Debugw(msg, kv...)
}

func (z *zapLogger) Infow(msg string, kv ...interface{}) {
	if z.lvl > LevelInfo {
		return
	}
	z.s.Infow(msg, kv...)
}

func (z *zapLogger) Warnw(msg string, kv ...interface{}) {
	if z.lvl > LevelWarn {
		return
	}
	z.s.Warnw(msg, kv...)
}

func (z *zapLogger) Errorw(msg string, kv ...interface{}) {
	z.s.Errorw(msg, kv...)
}

var defaultLogger Logger = newDefault()

func newDefault() Logger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return &zapLogger{lvl: LevelInfo, s: l.Sugar()}
}

// L returns the process-wide Logger.
func L() Logger { return defaultLogger }

// SetLogger replaces the process-wide Logger.
func SetLogger(l Logger) { defaultLogger = l }

// SetLevel adjusts the default zap-backed logger's level, a no-op if a
// custom Logger has been installed via SetLogger.
func SetLevel(lvl Level) {
	if z, ok := defaultLogger.(*zapLogger); ok {
		z.lvl = lvl
	}
}
