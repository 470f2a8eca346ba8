package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger = zap.NewNop()

// Init configures the global logger. Mode "release" selects production
// JSON output; anything else gets the development console encoder.
// LOG_LEVEL overrides the default level in either mode.
func Init(mode string) *zap.Logger {
	var config zap.Config
	if mode == "release" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if level, err := zapcore.ParseLevel(lvl); err == nil {
			config.Level.SetLevel(level)
		}
	}

	logger, err := config.Build()
	if err != nil {
		logger = zap.NewNop()
	}

	log = logger
	return logger
}

// L returns the global logger.
func L() *zap.Logger {
	return log
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	_ = log.Sync()
}
