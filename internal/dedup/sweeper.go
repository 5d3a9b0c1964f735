package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweeperConfig holds retention sweeper configuration.
type SweeperConfig struct {
	Interval  time.Duration // Sweep period (default: 10m)
	Retention time.Duration // Fingerprint lifetime (default: 10m)
}

// DefaultSweeperConfig returns sensible defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:  10 * time.Minute,
		Retention: 10 * time.Minute,
	}
}

// SweeperStats contains runtime statistics.
type SweeperStats struct {
	Sweeps  int64
	Evicted int64
	Errors  int64
}

// Sweeper periodically evicts expired fingerprints. Failures are logged and
// retried on the next tick; never fatal.
type Sweeper struct {
	cfg    SweeperConfig
	store  Store
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats SweeperStats
}

// NewSweeper creates a new retention sweeper.
func NewSweeper(cfg SweeperConfig, store Store, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("retention sweeper started",
		"interval", s.cfg.Interval,
		"retention", s.cfg.Retention,
	)
	return nil
}

// Stop gracefully shuts down the sweeper.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("retention sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (s *Sweeper) Stats() SweeperStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// run is the main sweep loop.
func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep evicts everything older than the retention window.
func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.cfg.Retention)

	deleted, err := s.store.EvictOlderThan(s.ctx, cutoff)

	s.mu.Lock()
	s.stats.Sweeps++
	if err != nil {
		s.stats.Errors++
	} else {
		s.stats.Evicted += deleted
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("fingerprint sweep failed", "error", err)
		return
	}

	s.logger.Debug("fingerprint sweep complete",
		"evicted", deleted,
		"cutoff", cutoff,
	)
}
