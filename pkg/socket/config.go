package socket

import (
	"github.com/zfogg/photostream/cli/pkg/config"
)

// ConfigFromSettings builds a Config from the loaded settings
func ConfigFromSettings(installationID string) Config {
	cfg := DefaultConfig()
	cfg.InstallationID = installationID

	if u := config.GetString("socket.url"); u != "" {
		cfg.URL = u
	}
	if d := config.GetMillis("socket.reconnect_delay"); d > 0 {
		cfg.ReconnectDelay = d
	}
	if d := config.GetSeconds("api.connect_timeout"); d > 0 {
		cfg.ConnectTimeout = d
	}
	cfg.ReconnectAttempts = config.GetInt("socket.reconnect_attempts")
	return cfg
}
