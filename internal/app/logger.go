package app

import (
	"strings"

	"github.com/charlesng35/l2cache/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server configuration, defaulting to info.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.InitWithOptions(logger.Options{
		Level:    level,
		Encoding: cfg.LogEncoding,
	})
}
