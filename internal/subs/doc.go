// Package subs provides read access to the leader/follower subscription
// table, which is owned by an external management surface.
//
// The table is read-mostly: the Cache holds an immutable Snapshot swapped
// atomically on periodic refresh, so planners always see a consistent view.
// Staleness is bounded by the refresh interval; a brief window of stale
// subscriptions only delays replication, never duplicates it, because
// deduplication is keyed off trade fingerprints, not subscription state.
package subs
