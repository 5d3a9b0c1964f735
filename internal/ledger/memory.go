package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/polymirror/engine/internal/model"
)

// MemoryLedger is an in-memory Ledger for tests.
type MemoryLedger struct {
	mu     sync.RWMutex
	byKey  map[string]*model.ReplicaOrder
	insert []string // keys in creation order
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byKey: make(map[string]*model.ReplicaOrder),
	}
}

func (m *MemoryLedger) Create(ctx context.Context, order *model.ReplicaOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[order.IdempotencyKey]; ok {
		return ErrDuplicateKey
	}
	cp := *order
	m.byKey[order.IdempotencyKey] = &cp
	m.insert = append(m.insert, order.IdempotencyKey)
	return nil
}

func (m *MemoryLedger) Update(ctx context.Context, order *model.ReplicaOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byKey[order.IdempotencyKey]
	if !ok {
		return ErrNotFound
	}
	existing.Status = order.Status
	existing.ExchangeOrderID = order.ExchangeOrderID
	existing.Attempts = order.Attempts
	existing.LastError = order.LastError
	existing.UpdatedAt = order.UpdatedAt
	return nil
}

func (m *MemoryLedger) GetByKey(ctx context.Context, key string) (*model.ReplicaOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *MemoryLedger) ListByFollower(ctx context.Context, followerID string, limit int) ([]*model.ReplicaOrder, error) {
	return m.list(func(o *model.ReplicaOrder) bool {
		return o.FollowerID == followerID
	}, limit, true), nil
}

func (m *MemoryLedger) ListByLeaderTrade(ctx context.Context, fp model.Fingerprint) ([]*model.ReplicaOrder, error) {
	return m.list(func(o *model.ReplicaOrder) bool {
		return o.Fingerprint == fp
	}, 0, false), nil
}

func (m *MemoryLedger) ListByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*model.ReplicaOrder, error) {
	return m.list(func(o *model.ReplicaOrder) bool {
		return !o.CreatedAt.Before(from) && o.CreatedAt.Before(to)
	}, limit, true), nil
}

func (m *MemoryLedger) ListUnresolved(ctx context.Context) ([]*model.ReplicaOrder, error) {
	return m.list(func(o *model.ReplicaOrder) bool {
		return !o.Status.Terminal()
	}, 0, false), nil
}

// list copies matching rows in creation order, optionally reversed to
// newest-first, applying limit after ordering.
func (m *MemoryLedger) list(match func(*model.ReplicaOrder) bool, limit int, newestFirst bool) []*model.ReplicaOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.ReplicaOrder
	for _, key := range m.insert {
		if o := m.byKey[key]; match(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	if newestFirst {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of stored rows.
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}
