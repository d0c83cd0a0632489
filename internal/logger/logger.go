// Package logger provides structured logging using Zap.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
)

// Options tunes the global logger beyond the environment name.
type Options struct {
	// File, when set, receives a copy of every entry, rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Init initializes the global logger for the given environment.
// For "production", it uses a JSON encoder. For all other environments,
// it uses a human-readable console encoder.
func Init(env string) {
	InitWithOptions(env, Options{})
}

// InitWithOptions is Init with an optional rotated log file.
func InitWithOptions(env string, opts Options) {
	once.Do(func() {
		var base *zap.Logger
		var err error

		if env == "production" {
			base, err = zap.NewProduction()
		} else {
			base, err = zap.NewDevelopment()
		}

		if err != nil {
			// Fallback to nop logger if initialization fails.
			base = zap.NewNop()
		}

		if opts.File != "" {
			base = base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
				return zapcore.NewTee(core, fileCore(env, opts))
			}))
		}

		sugar = base.Sugar()
	})
}

func fileCore(env string, opts Options) zapcore.Core {
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 50
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	})

	encCfg := zap.NewProductionEncoderConfig()
	level := zapcore.InfoLevel
	if env != "production" {
		level = zapcore.DebugLevel
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, level)
}

// Get returns the global sugared logger.
// If Init has not been called, it initializes a development logger.
func Get() *zap.SugaredLogger {
	if sugar == nil {
		Init(os.Getenv("ENV"))
	}
	return sugar
}

// Named returns a child of the global logger tagged with a component name.
func Named(component string) *zap.SugaredLogger {
	return Get().Named(component)
}

// Sync flushes any buffered log entries. Call this before application exit.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
