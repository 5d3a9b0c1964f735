// Package planner computes child order instructions from admitted leader
// trades.
//
// Plan is a pure function of the trade and a subscription snapshot: no I/O,
// no clock, deterministic idempotency keys. Re-planning the same admitted
// trade after a crash reproduces byte-identical instructions, which is what
// makes executor-side recovery safe.
package planner
