// Package logging builds the zap loggers used by the tomosirt command.
//
// Records go to stderr, in colored console form or as JSON, and optionally
// to a size-rotated JSON log file.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the log file.
const (
	MaxSizeMB  = 50
	MaxBackups = 3
	MaxAgeDays = 14
)

// Options selects the level and sinks of a logger.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string

	// File, when non-empty, receives a JSON copy of every record.
	File string

	// Development switches the console sink to colored, human-readable
	// output.
	Development bool

	// Console overrides the console sink; nil means os.Stderr.
	Console io.Writer
}

// ParseLevel maps a level name to a zap level. Matching is case-insensitive
// and "warning" is accepted for warn.
func ParseLevel(name string, fallback zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return fallback
	}
}

// EncoderConfig is the JSON encoder layout shared by every sink.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// ConsoleEncoderConfig is EncoderConfig with colored levels and a short
// clock for terminals.
func ConsoleEncoderConfig() zapcore.EncoderConfig {
	cfg := EncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("15:04:05.000"))
	}
	return cfg
}

// FileWriter returns a rotating sink for path.
func FileWriter(path string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    MaxSizeMB,
		MaxBackups: MaxBackups,
		MaxAge:     MaxAgeDays,
		Compress:   true,
	})
}

// New builds a logger for opts. The file sink always uses JSON so it can be
// parsed after a long run.
func New(opts Options) *zap.Logger {
	level := ParseLevel(opts.Level, zapcore.InfoLevel)

	var console io.Writer = os.Stderr
	if opts.Console != nil {
		console = opts.Console
	}
	consoleEnc := zapcore.NewJSONEncoder(EncoderConfig())
	if opts.Development {
		consoleEnc = zapcore.NewConsoleEncoder(ConsoleEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.AddSync(console), level),
	}
	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(EncoderConfig()),
			FileWriter(opts.File),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}
