// Package observability bootstraps the process loggers. Logger carries
// structured server-side logging; CLILogger is the console-friendly variant
// commands use for user-facing output.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger    = zap.NewNop()
	CLILogger = zap.NewNop()
)

// Init replaces the no-op loggers with real ones. With verbose set, debug
// logging is enabled.
func Init(verbose bool) error {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = logger

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.LevelKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	CLILogger = zap.New(core)
	return nil
}

// Sync flushes any buffered log entries. Safe to call on exit.
func Sync() {
	_ = Logger.Sync()
	_ = CLILogger.Sync()
}
