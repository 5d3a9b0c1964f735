// Package ledger persists replica orders, the durable record of every
// child order the replicator planned for a follower. Rows are created
// once per idempotency key and updated in place as the executor drives
// them toward a terminal status; nothing here ever deletes a row.
//
// Two implementations are provided: a Postgres store for production and
// an in-memory store for tests and the executor's unit suite.
package ledger
