// Package presence tracks who is online.
//
// The Tracker broadcasts the local user's status (online, away, offline)
// over the connection manager and maintains a roster of other users from
// inbound presence events. An inactivity watchdog demotes the local user
// to away after a period without interaction signals; any signal promotes
// them back to online immediately.
//
// A user absent from the roster is offline. The roster never holds an
// offline entry.
package presence
