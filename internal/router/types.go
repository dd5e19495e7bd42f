package router

import (
	"github.com/taskflow/tasksync/internal/cache"
	"github.com/taskflow/tasksync/internal/protocol"
)

// Config holds configuration for the Message Router.
type Config struct {
	// LocalUserID is the signed-in user. A client never notifies itself
	// about its own actions.
	LocalUserID string
}

// Invalidator receives cache-invalidation scopes. Satisfied by *cache.Store.
type Invalidator interface {
	Invalidate(scopes ...cache.Scope)
}

// PresenceSink receives presence events for roster maintenance. Satisfied by
// *presence.Tracker.
type PresenceSink interface {
	HandlePresence(env protocol.Envelope)
}

// Stats contains runtime statistics.
type Stats struct {
	Received    int64
	Invalidated int64
	Notified    int64
	Presence    int64
	Unknown     int64
}
