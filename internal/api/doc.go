// Package api provides the REST client used for presence bootstrap.
//
// The sync core is WebSocket-first; REST is only consulted once at
// startup to seed the presence roster. Requests retry on 5xx and 429
// with exponential backoff and jitter.
package api
