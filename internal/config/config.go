package config

import "time"

// ClientConfig is the root configuration for a sync client instance.
type ClientConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Sync     SyncConfig     `yaml:"sync"`
	Presence PresenceConfig `yaml:"presence"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig identifies the backend this client syncs against.
type ServerConfig struct {
	// WSURL is the base WebSocket URL, e.g. wss://tasks.example.com.
	// The session token is appended to the path, because the browser
	// counterpart of this protocol cannot set custom headers.
	WSURL string `yaml:"ws_url"`
	// RestURL is the REST base used for the presence bootstrap.
	RestURL string `yaml:"rest_url"`
	// Token is the session auth token. Without one the client stays
	// disconnected.
	Token string `yaml:"token"`
	// UserID is the signed-in user's id. The router suppresses
	// self-notifications and the presence tracker broadcasts under it.
	UserID string `yaml:"user_id"`
}

// SyncConfig holds connection manager settings.
type SyncConfig struct {
	AutoReconnect        *bool         `yaml:"auto_reconnect"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	BackoffCap           time.Duration `yaml:"backoff_cap"`
	InitialConnectDelay  time.Duration `yaml:"initial_connect_delay"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
}

// PresenceConfig holds presence tracker settings.
type PresenceConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	AwayTimeout       time.Duration `yaml:"away_timeout"`
	// ProjectID optionally scopes presence broadcasts to one project.
	ProjectID string `yaml:"project_id"`
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	DedupTTL                time.Duration `yaml:"dedup_ttl"`
	TransportNoticeInterval time.Duration `yaml:"transport_notice_interval"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// AutoReconnectEnabled resolves the tri-state auto_reconnect flag.
func (c *ClientConfig) AutoReconnectEnabled() bool {
	if c.Sync.AutoReconnect == nil {
		return DefaultAutoReconnect
	}
	return *c.Sync.AutoReconnect
}
