package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds a production JSON logger at level (debug, info, warn,
// error). "none" disables logging.
func NewLogger(level string) (*zap.Logger, error) {
	if level == "none" {
		return zap.NewNop(), nil
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = lvl.Level() > zap.DebugLevel
	return cfg.Build()
}
