package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polymirror/engine/internal/broadcast"
	"github.com/polymirror/engine/internal/dedup"
	"github.com/polymirror/engine/internal/model"
	"github.com/polymirror/engine/internal/planner"
	"github.com/polymirror/engine/internal/subs"
)

// TradeSource emits normalized leader trades. Implemented by the feed
// ingestor.
type TradeSource interface {
	Trades() <-chan model.LeaderTrade
}

// SnapshotSource provides the current subscription snapshot.
// Implemented by the subscription cache.
type SnapshotSource interface {
	Snapshot() *subs.Snapshot
}

// Submitter drives instructions to terminal outcomes. Implemented by
// the executor.
type Submitter interface {
	Submit(ctx context.Context, instr model.ChildOrderInstruction) (*model.ReplicaOrder, error)
	RecordSkip(ctx context.Context, instr model.ChildOrderInstruction, reason string) error
}

// Config holds engine parameters.
type Config struct {
	// Workers is the submission worker pool size.
	Workers int

	// DispatchDepth bounds the number of lanes awaiting a worker.
	DispatchDepth int

	// FailureThreshold marks a (leader, follower) subscription unhealthy
	// after this many consecutive FAILED outcomes and suppresses its
	// replication until a submission for the pair succeeds or the
	// process restarts. Zero disables the check.
	FailureThreshold int
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{Workers: 8, DispatchDepth: 256, FailureThreshold: 5}
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Received     uint64
	Admitted     uint64
	Duplicates   uint64
	AdmitErrors  uint64
	Planned      uint64
	Skipped      uint64
	Suppressed   uint64
	SubmitErrors uint64
	QueueDepth   int
	Unhealthy    int
}

// Engine wires the replication path: admit each leader trade exactly
// once, plan child orders against the current subscription snapshot,
// and run them through the worker pool in per-lane order.
type Engine struct {
	cfg       Config
	source    TradeSource
	admit     dedup.Store
	snapshots SnapshotSource
	planner   *planner.Planner
	submitter Submitter
	sink      broadcast.Sink // optional
	logger    *slog.Logger

	disp   *dispatcher
	cancel context.CancelFunc
	done   chan struct{}

	// Consecutive FAILED outcomes per subscription; pairs that cross
	// FailureThreshold land in unhealthy and are excluded from planning.
	healthMu  sync.Mutex
	failing   map[pairKey]int
	unhealthy map[pairKey]struct{}

	received     atomic.Uint64
	admitted     atomic.Uint64
	duplicates   atomic.Uint64
	admitErrors  atomic.Uint64
	planned      atomic.Uint64
	skipped      atomic.Uint64
	suppressedN  atomic.Uint64
	submitErrors atomic.Uint64
}

// New creates an Engine. sink may be nil.
func New(
	cfg Config,
	source TradeSource,
	admit dedup.Store,
	snapshots SnapshotSource,
	pl *planner.Planner,
	submitter Submitter,
	sink broadcast.Sink,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.DispatchDepth <= 0 {
		cfg.DispatchDepth = DefaultConfig().DispatchDepth
	}
	return &Engine{
		cfg:       cfg,
		source:    source,
		admit:     admit,
		snapshots: snapshots,
		planner:   pl,
		submitter: submitter,
		sink:      sink,
		logger:    logger.With("component", "engine"),
		disp:      newDispatcher(cfg.DispatchDepth),
		done:      make(chan struct{}),
		failing:   make(map[pairKey]int),
		unhealthy: make(map[pairKey]struct{}),
	}
}

// Start launches the admission loop and the worker pool.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.consume(gctx)
	})
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			return e.worker(gctx)
		})
	}

	go func() {
		if err := g.Wait(); err != nil && gctx.Err() == nil {
			e.logger.Error("engine stopped", "error", err)
		}
		close(e.done)
	}()

	e.logger.Info("engine started", "workers", e.cfg.Workers)
	return nil
}

// Stop cancels the loops and waits for in-flight work to settle.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	select {
	case <-e.done:
		e.logger.Info("engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown timed out: %w", ctx.Err())
	}
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.healthMu.Lock()
	unhealthy := len(e.unhealthy)
	e.healthMu.Unlock()

	return Stats{
		Received:     e.received.Load(),
		Admitted:     e.admitted.Load(),
		Duplicates:   e.duplicates.Load(),
		AdmitErrors:  e.admitErrors.Load(),
		Planned:      e.planned.Load(),
		Skipped:      e.skipped.Load(),
		Suppressed:   e.suppressedN.Load(),
		SubmitErrors: e.submitErrors.Load(),
		QueueDepth:   e.disp.depth(),
		Unhealthy:    unhealthy,
	}
}

func (e *Engine) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case trade, ok := <-e.source.Trades():
			if !ok {
				return nil
			}
			e.process(ctx, trade)
		}
	}
}

// process runs one trade through the admission gate and the planner.
func (e *Engine) process(ctx context.Context, trade model.LeaderTrade) {
	e.received.Add(1)

	admitted, err := e.admit.TryAdmit(ctx, trade.Fingerprint, time.Now().UTC())
	if err != nil {
		// Fail open: idempotency keys make a duplicate plan harmless,
		// a silently dropped trade is not.
		e.admitErrors.Add(1)
		e.logger.Error("admission check failed, processing anyway",
			"fingerprint", trade.Fingerprint,
			"error", err,
		)
		admitted = true
	}
	if !admitted {
		e.duplicates.Add(1)
		return
	}
	e.admitted.Add(1)

	if e.sink != nil {
		e.sink.TradeAdmitted(trade)
	}

	snap := e.snapshots.Snapshot()
	if snap == nil {
		e.logger.Warn("no subscription snapshot, trade dropped",
			"leader", trade.LeaderID,
			"fingerprint", trade.Fingerprint,
		)
		return
	}

	plan := e.planner.Plan(trade, snap)

	for _, skip := range plan.Skipped {
		e.skipped.Add(1)
		reason := fmt.Sprintf("size %s at or below market minimum %s", skip.Size, skip.MinSize)
		if err := e.submitter.RecordSkip(ctx, skipInstruction(trade, skip), reason); err != nil {
			e.logger.Error("recording skip",
				"follower", skip.FollowerID,
				"error", err,
			)
		}
	}

	for _, instr := range plan.Instructions {
		if e.isUnhealthy(pairKey{leaderID: trade.LeaderID, followerID: instr.FollowerID}) {
			e.suppressedN.Add(1)
			continue
		}
		e.planned.Add(1)
		if err := e.disp.enqueue(ctx, instr); err != nil {
			return
		}
	}
}

// worker claims lanes and drains each one fully, preserving per-lane
// submission order.
func (e *Engine) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case key := <-e.disp.workCh:
			for {
				instr, ok := e.disp.next(key)
				if !ok {
					break
				}
				// The pair may have gone unhealthy while this lane was
				// queued.
				if e.isUnhealthy(key) {
					e.suppressedN.Add(1)
					continue
				}
				order, err := e.submitter.Submit(ctx, instr)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					e.submitErrors.Add(1)
					e.logger.Error("submission aborted",
						"key", instr.IdempotencyKey,
						"follower", instr.FollowerID,
						"error", err,
					)
					continue
				}
				e.recordOutcome(key, order.Status)
			}
		}
	}
}

// isUnhealthy reports whether replication for the pair is suppressed.
func (e *Engine) isUnhealthy(key pairKey) bool {
	if e.cfg.FailureThreshold <= 0 {
		return false
	}
	e.healthMu.Lock()
	defer e.healthMu.Unlock()
	_, ok := e.unhealthy[key]
	return ok
}

// recordOutcome tracks consecutive FAILED outcomes per subscription.
// Any other terminal outcome clears the pair's failure streak.
func (e *Engine) recordOutcome(key pairKey, status model.ReplicaStatus) {
	if e.cfg.FailureThreshold <= 0 {
		return
	}
	e.healthMu.Lock()
	defer e.healthMu.Unlock()

	if status != model.StatusFailed {
		delete(e.failing, key)
		delete(e.unhealthy, key)
		return
	}

	e.failing[key]++
	if e.failing[key] < e.cfg.FailureThreshold {
		return
	}
	if _, ok := e.unhealthy[key]; !ok {
		e.unhealthy[key] = struct{}{}
		e.logger.Error("subscription unhealthy, suppressing replication",
			"leader", key.leaderID,
			"follower", key.followerID,
			"consecutive_failures", e.failing[key],
		)
	}
}

// skipInstruction rebuilds the instruction shape for a skipped follower
// so the ledger row carries the same fields as a submitted one.
func skipInstruction(trade model.LeaderTrade, skip planner.Skip) model.ChildOrderInstruction {
	return model.ChildOrderInstruction{
		FollowerID:     skip.FollowerID,
		LeaderID:       trade.LeaderID,
		Market:         trade.Market,
		Side:           trade.Side,
		Price:          trade.Price,
		Size:           skip.Size,
		IdempotencyKey: model.IdempotencyKey(trade.Fingerprint, skip.FollowerID),
		Fingerprint:    trade.Fingerprint,
		LeaderTradeTS:  trade.ExchangeTS,
	}
}
