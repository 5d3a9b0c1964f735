package dedup

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polymirror/engine/internal/model"
)

// PostgresStore is a fingerprint store backed by the trade_fingerprints
// table. Atomicity of TryAdmit comes from the unique constraint plus
// ON CONFLICT DO NOTHING: exactly one insert reports a row affected.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a store over an existing pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// TryAdmit inserts the fingerprint if absent.
func (s *PostgresStore) TryAdmit(ctx context.Context, fp model.Fingerprint, processedAt time.Time) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO trade_fingerprints (fingerprint, processed_at)
		VALUES ($1, $2)
		ON CONFLICT (fingerprint) DO NOTHING
	`, string(fp), processedAt.UnixMicro())
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// EvictOlderThan deletes fingerprints processed before cutoff.
func (s *PostgresStore) EvictOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `
		DELETE FROM trade_fingerprints WHERE processed_at < $1
	`, cutoff.UnixMicro())
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
