package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema statements are idempotent so every instance can run them on
// startup without coordination.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS trade_fingerprints (
		fingerprint  TEXT PRIMARY KEY,
		processed_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_fingerprints_processed_at
		ON trade_fingerprints (processed_at)`,
	`CREATE TABLE IF NOT EXISTS replica_orders (
		id                UUID PRIMARY KEY,
		idempotency_key   TEXT NOT NULL UNIQUE,
		follower_id       TEXT NOT NULL,
		leader_id         TEXT NOT NULL,
		market            TEXT NOT NULL,
		side              TEXT NOT NULL,
		price             NUMERIC NOT NULL,
		size              NUMERIC NOT NULL,
		fingerprint       TEXT NOT NULL,
		leader_trade_ts   BIGINT NOT NULL,
		status            TEXT NOT NULL,
		exchange_order_id TEXT NOT NULL DEFAULT '',
		attempts          INT NOT NULL DEFAULT 0,
		last_error        TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_replica_orders_follower
		ON replica_orders (follower_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_replica_orders_fingerprint
		ON replica_orders (fingerprint)`,
	`CREATE INDEX IF NOT EXISTS idx_replica_orders_status
		ON replica_orders (status) WHERE status IN ('PENDING', 'SUBMITTED')`,
}

// EnsureSchema creates the replicator tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
