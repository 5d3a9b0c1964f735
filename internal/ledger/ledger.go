package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/polymirror/engine/internal/model"
)

var (
	// ErrNotFound is returned when no replica order matches the lookup.
	ErrNotFound = errors.New("replica order not found")

	// ErrDuplicateKey is returned by Create when a row with the same
	// idempotency key already exists. Callers re-fetch and resume from
	// the stored row.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
)

// Ledger is the replica order store.
type Ledger interface {
	// Create inserts a new row. Returns ErrDuplicateKey if a row with
	// the same idempotency key exists.
	Create(ctx context.Context, order *model.ReplicaOrder) error

	// Update overwrites the mutable fields (status, exchange order id,
	// attempts, last error) of the row identified by the order's
	// idempotency key.
	Update(ctx context.Context, order *model.ReplicaOrder) error

	// GetByKey fetches the row for an idempotency key, or ErrNotFound.
	GetByKey(ctx context.Context, key string) (*model.ReplicaOrder, error)

	// ListByFollower returns a follower's rows, newest first.
	ListByFollower(ctx context.Context, followerID string, limit int) ([]*model.ReplicaOrder, error)

	// ListByLeaderTrade returns all rows sharing a trade fingerprint.
	ListByLeaderTrade(ctx context.Context, fp model.Fingerprint) ([]*model.ReplicaOrder, error)

	// ListByTimeRange returns rows created within [from, to), newest
	// first.
	ListByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*model.ReplicaOrder, error)

	// ListUnresolved returns rows in a non-terminal status, oldest
	// first. Used on startup to resume interrupted submissions.
	ListUnresolved(ctx context.Context) ([]*model.ReplicaOrder, error)
}
