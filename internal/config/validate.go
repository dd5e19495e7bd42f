package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Server.WSURL == "" {
		return errors.New("server.ws_url is required")
	}
	if !strings.HasPrefix(c.Server.WSURL, "ws://") && !strings.HasPrefix(c.Server.WSURL, "wss://") {
		return fmt.Errorf("server.ws_url must use ws:// or wss://, got %q", c.Server.WSURL)
	}
	if c.Server.RestURL == "" {
		return errors.New("server.rest_url is required")
	}

	if c.Sync.ReconnectInterval <= 0 {
		return errors.New("sync.reconnect_interval must be > 0")
	}
	if c.Sync.MaxReconnectAttempts < 1 {
		return errors.New("sync.max_reconnect_attempts must be >= 1")
	}
	if c.Sync.BackoffCap < c.Sync.ReconnectInterval {
		return fmt.Errorf("sync.backoff_cap (%v) cannot be less than sync.reconnect_interval (%v)",
			c.Sync.BackoffCap, c.Sync.ReconnectInterval)
	}
	if c.Sync.HeartbeatInterval <= 0 {
		return errors.New("sync.heartbeat_interval must be > 0")
	}

	if c.Presence.HeartbeatInterval <= 0 {
		return errors.New("presence.heartbeat_interval must be > 0")
	}
	if c.Presence.AwayTimeout <= 0 {
		return errors.New("presence.away_timeout must be > 0")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}

	return nil
}
