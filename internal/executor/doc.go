// Package executor drives child order instructions to a terminal state.
//
// Every instruction maps to exactly one ledger row, keyed by its
// idempotency key. The row is written before each wire attempt, so a
// crash mid-submission leaves a PENDING or SUBMITTED row that Recover
// picks up on the next start. The same key is sent as the client order
// id, letting the exchange drop duplicates the ledger missed.
//
// Outcome classification: a rejection from the exchange is permanent
// and never retried; transport failures and 5xx/429/408 responses are
// transient and retried with jittered exponential backoff. After a
// transient failure the executor asks the exchange whether the order
// landed anyway before counting the attempt as lost.
package executor
