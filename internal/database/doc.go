// Package database provides the PostgreSQL connection pool and schema
// bootstrap for the replicator's durable state: the fingerprint table
// that backs exactly-once admission and the replica order ledger.
package database
