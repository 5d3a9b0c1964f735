// Package engine runs the replication pipeline.
//
// One admission loop consumes normalized leader trades, passes each
// through the fingerprint gate exactly once, and plans child orders
// against the live subscription snapshot. Planned instructions are
// dispatched to a bounded worker pool through per-(leader, follower)
// lanes: a lane is owned by one worker at a time, so a follower's
// orders for a given leader always submit in trade order while
// unrelated followers proceed in parallel.
package engine
