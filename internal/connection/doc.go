// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single WebSocket session for an authenticated client
//   - Drives the Disconnected/Connecting/Connected/Error state machine
//   - Handles reconnection with exponential backoff, honoring the
//     server's close-code policy
//   - Sends application-level heartbeats while connected
//   - Forwards decoded envelopes to the Message Router
//
// All transport callbacks and timers are modeled as event variants consumed
// by one goroutine, so the state machine is testable without a live socket.
package connection
