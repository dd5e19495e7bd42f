package connection

import (
	"errors"
	"log/slog"
	"time"
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrAlreadyClosed  = errors.New("already closed")
	ErrAlreadyStarted = errors.New("manager already started")
)

// State is the connection lifecycle state. Exactly one Manager (and thus one
// state) exists per authenticated session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// WebSocket close codes the reconnect policy cares about.
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseNoStatus        = 1005
	CloseAbnormalClosure = 1006
)

// CloseInfo describes how a transport session ended. Code is 0 when the
// session died without a close frame (failed dial, TCP reset).
type CloseInfo struct {
	Code int
	Err  error
}

// retryableClose reports whether a close code should trigger reconnection.
// The four designated clean/expected codes do not; everything else does,
// including codeless transport failures.
func retryableClose(code int) bool {
	switch code {
	case CloseNormalClosure, CloseGoingAway, CloseNoStatus, CloseAbnormalClosure:
		return false
	}
	return true
}

// backoffDelay returns the reconnect delay for the given attempt (1-based):
// base doubled per attempt, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// ClientConfig configures a single WebSocket session.
type ClientConfig struct {
	URL              string        // Full session URL, token included in the path
	HandshakeTimeout time.Duration // Dial handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	FrameBuffer      int           // Inbound frame channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		FrameBuffer:      256,
	}
}

// NewClientFunc creates a Client. The Manager takes one so tests can supply
// a synthetic transport.
type NewClientFunc func(cfg ClientConfig, logger *slog.Logger) Client

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	BaseURL string // ws(s)://host base; session path is appended
	Token   string // Session auth token; empty means stay disconnected

	AutoReconnect        bool
	ReconnectInterval    time.Duration // Backoff base
	MaxReconnectAttempts int
	BackoffCap           time.Duration
	InitialConnectDelay  time.Duration // Delay before the first automatic connect
	HeartbeatInterval    time.Duration
	WriteTimeout         time.Duration

	TransportNoticeInterval time.Duration // Min interval between transient error notices
	MessageBuffer           int           // Inbound envelope channel buffer
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		AutoReconnect:           true,
		ReconnectInterval:       3 * time.Second,
		MaxReconnectAttempts:    5,
		BackoffCap:              30 * time.Second,
		InitialConnectDelay:     3 * time.Second,
		HeartbeatInterval:       30 * time.Second,
		WriteTimeout:            5 * time.Second,
		TransportNoticeInterval: 10 * time.Second,
		MessageBuffer:           256,
	}
}

// ManagerStats is a snapshot of the manager's internals, for diagnostics and
// tests.
type ManagerStats struct {
	State              State
	ReconnectAttempts  int
	HeartbeatActive    bool
	ReconnectScheduled bool
	TerminalFired      bool
}
