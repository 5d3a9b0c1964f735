package subs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polymirror/engine/internal/model"
)

// Snapshot is an immutable, internally consistent view of the subscription
// table. Never mutated after construction; the cache swaps whole snapshots.
type Snapshot struct {
	leaders  []model.LeaderAccount
	byLeader map[string][]model.FollowerSubscription
	At       time.Time
}

// ActiveLeaders returns the active leader accounts in this snapshot.
func (s *Snapshot) ActiveLeaders() []model.LeaderAccount {
	return s.leaders
}

// ForLeader returns the active subscriptions for one leader.
func (s *Snapshot) ForLeader(leaderID string) []model.FollowerSubscription {
	return s.byLeader[leaderID]
}

// NewSnapshot builds a snapshot from explicit data. Exported for tests and
// for planners that need a fixed view.
func NewSnapshot(leaders []model.LeaderAccount, subs []model.FollowerSubscription) *Snapshot {
	byLeader := make(map[string][]model.FollowerSubscription)
	for _, sub := range subs {
		byLeader[sub.LeaderID] = append(byLeader[sub.LeaderID], sub)
	}
	return &Snapshot{
		leaders:  leaders,
		byLeader: byLeader,
		At:       time.Now(),
	}
}

// CacheConfig holds cache configuration.
type CacheConfig struct {
	RefreshInterval time.Duration // Snapshot refresh period (default: 5s)
}

// Cache periodically refreshes a Snapshot from the Store and serves it
// lock-free to readers.
type Cache struct {
	cfg    CacheConfig
	store  Store
	logger *slog.Logger

	snapshot atomic.Pointer[Snapshot]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	refreshes atomic.Int64
	errors    atomic.Int64
}

// CacheStats contains runtime statistics.
type CacheStats struct {
	Refreshes  int64
	Errors     int64
	SnapshotAt time.Time
	Leaders    int
}

// NewCache creates a subscription cache.
func NewCache(cfg CacheConfig, store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 5 * time.Second
	}

	c := &Cache{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
	c.snapshot.Store(NewSnapshot(nil, nil))
	return c
}

// Start performs a blocking initial refresh, then refreshes in the
// background.
func (c *Cache) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.Refresh(c.ctx); err != nil {
		c.cancel()
		return err
	}

	c.wg.Add(1)
	go c.refreshLoop()

	c.logger.Info("subscription cache started",
		"refresh_interval", c.cfg.RefreshInterval,
		"leaders", len(c.Snapshot().ActiveLeaders()),
	)
	return nil
}

// Stop gracefully shuts down the cache.
func (c *Cache) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("subscription cache stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current snapshot. Always non-nil.
func (c *Cache) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// ActiveLeaders implements the feed ingestor's LeaderSource.
func (c *Cache) ActiveLeaders() []model.LeaderAccount {
	return c.Snapshot().ActiveLeaders()
}

// Stats returns current statistics.
func (c *Cache) Stats() CacheStats {
	snap := c.Snapshot()
	return CacheStats{
		Refreshes:  c.refreshes.Load(),
		Errors:     c.errors.Load(),
		SnapshotAt: snap.At,
		Leaders:    len(snap.leaders),
	}
}

// Refresh rebuilds the snapshot from the store and swaps it in.
func (c *Cache) Refresh(ctx context.Context) error {
	leaders, err := c.store.ActiveLeaders(ctx)
	if err != nil {
		c.errors.Add(1)
		return err
	}

	byLeader := make(map[string][]model.FollowerSubscription, len(leaders))
	for _, l := range leaders {
		subs, err := c.store.ActiveForLeader(ctx, l.ID)
		if err != nil {
			c.errors.Add(1)
			return err
		}
		byLeader[l.ID] = subs
	}

	c.snapshot.Store(&Snapshot{
		leaders:  leaders,
		byLeader: byLeader,
		At:       time.Now(),
	})
	c.refreshes.Add(1)
	return nil
}

// refreshLoop refreshes on a fixed interval. A failed refresh keeps the
// previous snapshot; the next tick retries.
func (c *Cache) refreshLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(c.ctx); err != nil && c.ctx.Err() == nil {
				c.logger.Warn("subscription refresh failed", "error", err)
			}
		}
	}
}
