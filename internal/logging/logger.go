// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// L is the process-wide logger. It starts as a no-op logger so packages can
// log before InitLogger runs (and in tests) without nil checks.
var L = zap.NewNop()

// FileConfig bounds the optional size-rotated log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// NewWithFile builds a logger that tees console output into a size-rotated
// JSON log file managed by lumberjack.
func NewWithFile(development bool, file FileConfig) (*zap.Logger, error) {
	base, err := New(development)
	if err != nil {
		return nil, err
	}
	if file.Path == "" {
		return base, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(rotator),
		zapcore.InfoLevel,
	)
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

// InitLogger builds the global logger and installs it as L. Intended to be
// called exactly once at process start; falling back to a plain production
// logger keeps startup alive if the configured build fails.
func InitLogger(development bool, file FileConfig) {
	logger, err := NewWithFile(development, file)
	if err != nil {
		logger = zap.Must(zap.NewProduction())
		logger.Warn("Falling back to default production logger", zap.Error(err))
	}
	L = logger
}
