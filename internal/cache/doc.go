// Package cache implements the local view of shared state.
//
// The store is the single target of both optimistic mutations and
// server-driven invalidation: the mutation coordinator writes slots directly,
// while the message router invalidates them by scope so the application
// refetches from the REST surface. Slots are plain values keyed by string;
// the store never talks to the network itself.
package cache
