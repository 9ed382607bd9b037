// Package logging builds the process-wide zap logger: a console core for
// the operator plus a rotating JSON file core for offline diagnosis.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
	defaultMaxAgeDays = 30
)

// Options configures the logger sinks.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// File enables the rotating JSON sink when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a logger from options. The console core always runs; the file
// core is added when a path is configured. A file-sink setup failure falls
// back to console-only and reports the error on stderr rather than failing
// the run.
func New(opts Options) *zap.Logger {
	level := parseLevel(opts.Level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stderr),
			level,
		),
	}

	if opts.File != "" {
		sink, err := fileSink(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file disabled: %v\n", err)
		} else {
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				sink,
				level,
			))
		}
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func parseLevel(level string) zap.AtomicLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

func fileSink(opts Options) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    positive(opts.MaxSizeMB, defaultMaxSizeMB),
		MaxBackups: positive(opts.MaxBackups, defaultMaxBackups),
		MaxAge:     positive(opts.MaxAgeDays, defaultMaxAgeDays),
		Compress:   true,
	}
	return zapcore.AddSync(writer), nil
}

func positive(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
