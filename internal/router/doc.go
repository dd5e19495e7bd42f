// Package router implements the Message Router component.
//
// The Message Router:
//   - Consumes decoded envelopes from the Connection Manager in arrival order
//   - Maps each message type to the cache scopes it invalidates
//   - Produces user notifications, suppressing a client's own actions
//   - Forwards presence events to the Presence Tracker's roster
//   - Logs and counts unknown types without treating them as errors
package router
