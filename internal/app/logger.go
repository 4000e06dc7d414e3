package app

import (
	"strings"

	"github.com/charlesng35/formdesk/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server section,
// defaulting to info level JSON output.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	if cfg.Debug && level == "info" {
		level = "debug"
	}
	return logger.InitWithFormat(level, strings.TrimSpace(cfg.LogFormat))
}
