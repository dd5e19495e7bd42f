// Package protocol defines the wire format shared by both directions of the
// sync channel.
//
// Every frame is a JSON envelope:
//
//	{ "type": "<string>", "data": { ... }, "timestamp": "<ISO-8601>" }
//
// The envelope carries no delivery or ordering guarantees beyond in-order
// arrival on a single connection.
package protocol
