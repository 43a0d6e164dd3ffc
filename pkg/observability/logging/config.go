// Package logging builds the bridge's structured zap loggers: one base
// logger created at startup from configuration, plus request-scoped
// child loggers carrying a correlation id, attached to the request
// context by the HTTP middleware.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// LoggingConfig wraps a zap.Config so the logging section of a server
// config file is the standard zap configuration surface (level,
// encoding, output paths).
type LoggingConfig struct {
	zap.Config
}

// DefaultConfig returns a production JSON logger configuration writing
// to stdout at info level.
func DefaultConfig() *LoggingConfig {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	return &LoggingConfig{Config: cfg}
}

// BuildBase creates the base logger from the configuration. It should be
// called once at startup; the resulting logger is reused for the life of
// the process and extended per request via the middleware.
func (lc *LoggingConfig) BuildBase() (*zap.Logger, error) {
	logger, err := lc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build base zap logger: %w", err)
	}
	return logger, nil
}
