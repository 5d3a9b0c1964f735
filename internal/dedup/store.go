package dedup

import (
	"context"
	"time"

	"github.com/polymirror/engine/internal/model"
)

// Store is the durable set of processed trade fingerprints.
type Store interface {
	// TryAdmit atomically inserts the fingerprint if absent. Returns true
	// if this caller won admission, false if the fingerprint was already
	// present. Must be atomic with respect to concurrent callers for the
	// same fingerprint.
	TryAdmit(ctx context.Context, fp model.Fingerprint, processedAt time.Time) (bool, error)

	// EvictOlderThan deletes all fingerprints processed before cutoff and
	// returns the number deleted.
	EvictOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
