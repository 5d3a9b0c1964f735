// Package dedup implements the Fingerprint Store and Retention Sweeper.
//
// TryAdmit is the single correctness-critical operation in the pipeline:
// it atomically turns the exchange's at-least-once delivery into
// exactly-once replication. Exactly one concurrent caller wins per
// fingerprint.
//
// Two implementations:
//   - MemoryStore: mutex-guarded map, used in tests and single-node runs
//   - PostgresStore: INSERT ... ON CONFLICT DO NOTHING, safe across
//     processes
//
// The Sweeper periodically evicts fingerprints older than the retention
// window, which is sized to exceed the exchange's maximum observed
// duplicate-redelivery window with margin.
package dedup
