package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrMissingType = errors.New("envelope missing type")
	ErrBadType     = errors.New("envelope type is not a string")
)

// Message types broadcast by the server.
const (
	TypeTaskCreated      = "task_created"
	TypeTaskUpdated      = "task_updated"
	TypeTaskDeleted      = "task_deleted"
	TypeTaskCommentAdded = "task_comment_added"
	TypeTaskAssigned     = "task_assigned"
	TypeTaskCompleted    = "task_completed"

	TypeProjectCreated       = "project_created"
	TypeProjectUpdated       = "project_updated"
	TypeProjectDeleted       = "project_deleted"
	TypeProjectMemberAdded   = "project_member_added"
	TypeProjectMemberRemoved = "project_member_removed"

	TypeUserOnline  = "user_online"
	TypeUserAway    = "user_away"
	TypeUserOffline = "user_offline"

	TypeActivityCreated = "activity_created"

	TypePing = "ping"
	TypePong = "pong"

	// Server-side confirmations. The router treats these as no-ops.
	TypeConnected    = "connected"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"
)

// Client-originated message types.
const (
	TypeSubscribeProject   = "subscribe_project"
	TypeUnsubscribeProject = "unsubscribe_project"
	TypeUserStatus         = "user_status"
)

// Envelope is the wire message shape for both directions.
// Immutable once constructed; never persisted.
type Envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an outbound envelope stamped with the current time.
func New(msgType string, data map[string]any) Envelope {
	return Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Encode serializes the envelope for transmission.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// envelopeWire tolerates arbitrary JSON in every field so that a malformed
// frame can be rejected with a precise error instead of a decode panic.
type envelopeWire struct {
	Type      json.RawMessage `json:"type"`
	Data      map[string]any  `json:"data"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Decode parses an inbound frame. A frame whose type is absent or not a
// string is rejected; callers log and drop it without further effect.
func Decode(raw []byte) (Envelope, error) {
	var wire envelopeWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}

	if len(wire.Type) == 0 {
		return Envelope{}, ErrMissingType
	}

	var msgType string
	if err := json.Unmarshal(wire.Type, &msgType); err != nil {
		return Envelope{}, ErrBadType
	}
	if msgType == "" {
		return Envelope{}, ErrMissingType
	}

	env := Envelope{
		Type: msgType,
		Data: wire.Data,
	}

	// Timestamp is informational; a missing or unparseable one is not an
	// error.
	if len(wire.Timestamp) > 0 {
		var ts time.Time
		if err := json.Unmarshal(wire.Timestamp, &ts); err == nil {
			env.Timestamp = ts
		}
	}

	return env, nil
}

// String returns the string value of a data field, or "" when the field is
// absent or not a string.
func (e Envelope) String(field string) string {
	v, _ := e.Data[field].(string)
	return v
}

// Has reports whether a data field is present and is a non-empty string.
func (e Envelope) Has(field string) bool {
	return e.String(field) != ""
}

// Actor returns the id of the user who triggered this event. The backend is
// not perfectly consistent about the field name, so both spellings are
// accepted.
func (e Envelope) Actor() string {
	if v := e.String("user_id"); v != "" {
		return v
	}
	return e.String("actor_id")
}
