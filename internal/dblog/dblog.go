// Package dblog wires a single zap logger for the engine. Every
// component receives a *zap.SugaredLogger via constructor injection
// rather than reaching for a package-level global, so tests can pass
// zap.NewNop().
package dblog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console-encoded logger at the given level ("debug",
// "info", "warn", "error"). Unknown levels fall back to "info".
func New(level string) *zap.SugaredLogger {
	lvl := zapcore.InfoLevel
	_ = lvl.UnmarshalText([]byte(level))

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "" // deterministic-ish console output for CLI use

	logger, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger; logging must never be fatal to
		// starting the engine.
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// Nop returns a logger that discards everything, for tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
