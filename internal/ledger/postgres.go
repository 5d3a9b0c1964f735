package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/polymirror/engine/internal/model"
)

const replicaColumns = `
	id, idempotency_key, follower_id, leader_id, market, side,
	price, size, fingerprint, leader_trade_ts, status,
	exchange_order_id, attempts, last_error, created_at, updated_at`

// PostgresLedger stores replica orders in the replica_orders table.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger creates a ledger over an existing pool.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Create(ctx context.Context, order *model.ReplicaOrder) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO replica_orders (`+replicaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		order.ID, order.IdempotencyKey, order.FollowerID, order.LeaderID,
		order.Market, string(order.Side), order.Price.String(), order.Size.String(),
		string(order.Fingerprint), order.LeaderTradeTS, string(order.Status),
		order.ExchangeOrderID, order.Attempts, order.LastError,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return fmt.Errorf("inserting replica order: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Update(ctx context.Context, order *model.ReplicaOrder) error {
	ct, err := l.db.Exec(ctx, `
		UPDATE replica_orders
		SET status = $2, exchange_order_id = $3, attempts = $4,
		    last_error = $5, updated_at = $6
		WHERE idempotency_key = $1
	`,
		order.IdempotencyKey, string(order.Status), order.ExchangeOrderID,
		order.Attempts, order.LastError, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating replica order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (l *PostgresLedger) GetByKey(ctx context.Context, key string) (*model.ReplicaOrder, error) {
	row := l.db.QueryRow(ctx, `
		SELECT `+replicaColumns+`
		FROM replica_orders WHERE idempotency_key = $1
	`, key)
	order, err := scanReplica(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return order, err
}

func (l *PostgresLedger) ListByFollower(ctx context.Context, followerID string, limit int) ([]*model.ReplicaOrder, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+replicaColumns+`
		FROM replica_orders
		WHERE follower_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, followerID, limitOrMax(limit))
	if err != nil {
		return nil, fmt.Errorf("listing by follower: %w", err)
	}
	return collectReplicas(rows)
}

func (l *PostgresLedger) ListByLeaderTrade(ctx context.Context, fp model.Fingerprint) ([]*model.ReplicaOrder, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+replicaColumns+`
		FROM replica_orders
		WHERE fingerprint = $1
		ORDER BY created_at ASC
	`, string(fp))
	if err != nil {
		return nil, fmt.Errorf("listing by leader trade: %w", err)
	}
	return collectReplicas(rows)
}

func (l *PostgresLedger) ListByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*model.ReplicaOrder, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+replicaColumns+`
		FROM replica_orders
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limitOrMax(limit))
	if err != nil {
		return nil, fmt.Errorf("listing by time range: %w", err)
	}
	return collectReplicas(rows)
}

func (l *PostgresLedger) ListUnresolved(ctx context.Context) ([]*model.ReplicaOrder, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+replicaColumns+`
		FROM replica_orders
		WHERE status IN ('PENDING', 'SUBMITTED')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing unresolved: %w", err)
	}
	return collectReplicas(rows)
}

func limitOrMax(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}

func scanReplica(row pgx.Row) (*model.ReplicaOrder, error) {
	var (
		order       model.ReplicaOrder
		side        string
		priceStr    string
		sizeStr     string
		fingerprint string
		status      string
	)
	err := row.Scan(
		&order.ID, &order.IdempotencyKey, &order.FollowerID, &order.LeaderID,
		&order.Market, &side, &priceStr, &sizeStr, &fingerprint,
		&order.LeaderTradeTS, &status, &order.ExchangeOrderID,
		&order.Attempts, &order.LastError, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.Side = model.Side(side)
	order.Fingerprint = model.Fingerprint(fingerprint)
	order.Status = model.ReplicaStatus(status)
	if order.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("parsing stored price: %w", err)
	}
	if order.Size, err = decimal.NewFromString(sizeStr); err != nil {
		return nil, fmt.Errorf("parsing stored size: %w", err)
	}
	return &order, nil
}

func collectReplicas(rows pgx.Rows) ([]*model.ReplicaOrder, error) {
	defer rows.Close()

	var out []*model.ReplicaOrder
	for rows.Next() {
		order, err := scanReplica(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning replica order: %w", err)
		}
		out = append(out, order)
	}
	return out, rows.Err()
}
