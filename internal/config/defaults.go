package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAutoReconnect           = true
	DefaultReconnectInterval       = 3 * time.Second
	DefaultMaxReconnectAttempts    = 5
	DefaultBackoffCap              = 30 * time.Second
	DefaultInitialConnectDelay     = 3 * time.Second
	DefaultHeartbeatInterval       = 30 * time.Second
	DefaultWriteTimeout            = 5 * time.Second
	DefaultPresenceHeartbeat       = 30 * time.Second
	DefaultAwayTimeout             = 5 * time.Minute
	DefaultDedupTTL                = 30 * time.Second
	DefaultTransportNoticeInterval = 10 * time.Second
	DefaultLogLevel                = "info"
)

func (c *ClientConfig) applyDefaults() {
	if c.Sync.ReconnectInterval == 0 {
		c.Sync.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Sync.MaxReconnectAttempts == 0 {
		c.Sync.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Sync.BackoffCap == 0 {
		c.Sync.BackoffCap = DefaultBackoffCap
	}
	if c.Sync.InitialConnectDelay == 0 {
		c.Sync.InitialConnectDelay = DefaultInitialConnectDelay
	}
	if c.Sync.HeartbeatInterval == 0 {
		c.Sync.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Sync.WriteTimeout == 0 {
		c.Sync.WriteTimeout = DefaultWriteTimeout
	}

	if c.Presence.HeartbeatInterval == 0 {
		c.Presence.HeartbeatInterval = DefaultPresenceHeartbeat
	}
	if c.Presence.AwayTimeout == 0 {
		c.Presence.AwayTimeout = DefaultAwayTimeout
	}

	if c.Notify.DedupTTL == 0 {
		c.Notify.DedupTTL = DefaultDedupTTL
	}
	if c.Notify.TransportNoticeInterval == 0 {
		c.Notify.TransportNoticeInterval = DefaultTransportNoticeInterval
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}
