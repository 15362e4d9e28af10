// Package logging builds the structured logger handle threaded through the
// engine. Every component takes a *zap.SugaredLogger via its constructor;
// nothing here reaches for a package-level singleton.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger for the given level name
// (debug|info|warn|error). "debug" gets a human-readable development
// encoder; anything else gets the production JSON encoder.
func New(level string) (*zap.SugaredLogger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("error while parsing log level %q: %w", level, err)
	}

	var cfg zap.Config
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("error while building logger: %w", err)
	}

	return l.Sugar(), nil
}

// Noop returns a logger that discards everything, for tests that don't
// care about log output.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
