// Package mutation applies optimistic cache writes with exact rollback.
//
// Apply snapshots the current cached value, writes the desired value
// synchronously, then runs the persistence call in the background. On
// success the optimistic value stands and a reconcile invalidation fires;
// on failure the snapshot is restored byte for byte and the error is
// delivered to the caller. Each mutation carries its own snapshot, so
// overlapping mutations on one key resolve last-write-wins.
package mutation
