package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/polymirror/engine/internal/api"
	"github.com/polymirror/engine/internal/ledger"
	"github.com/polymirror/engine/internal/model"
)

// ExchangeClient is the order-entry surface the executor needs.
// *api.Client satisfies it.
type ExchangeClient interface {
	PostOrder(ctx context.Context, req api.OrderRequest) (*api.OrderResponse, error)
	GetOrder(ctx context.Context, clientOrderID string) (*api.OrderResponse, error)
}

// EventSink receives replica order state changes. Implementations must
// not block; delivery is best effort.
type EventSink interface {
	ReplicaUpdated(order *model.ReplicaOrder)
}

// Config holds retry parameters.
type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultConfig returns the standard retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  10 * time.Second,
	}
}

// Stats is a snapshot of executor counters.
type Stats struct {
	Submitted uint64
	Accepted  uint64
	Rejected  uint64
	Failed    uint64
	Retries   uint64
	Recovered uint64
}

// Executor submits child orders and records their outcomes.
type Executor struct {
	cfg      Config
	ledger   ledger.Ledger
	exchange ExchangeClient
	sink     EventSink // optional
	logger   *slog.Logger

	submitted atomic.Uint64
	accepted  atomic.Uint64
	rejected  atomic.Uint64
	failed    atomic.Uint64
	retries   atomic.Uint64
	recovered atomic.Uint64
}

// New creates an Executor. sink may be nil.
func New(cfg Config, l ledger.Ledger, exchange ExchangeClient, sink EventSink, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = DefaultConfig().BackoffMax
	}
	return &Executor{
		cfg:      cfg,
		ledger:   l,
		exchange: exchange,
		sink:     sink,
		logger:   logger.With("component", "executor"),
	}
}

// Stats returns a snapshot of the counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Submitted: e.submitted.Load(),
		Accepted:  e.accepted.Load(),
		Rejected:  e.rejected.Load(),
		Failed:    e.failed.Load(),
		Retries:   e.retries.Load(),
		Recovered: e.recovered.Load(),
	}
}

// Submit drives one instruction to a terminal status. Calling it again
// with the same instruction returns the stored outcome without touching
// the exchange. The returned error reports infrastructure failures
// (ledger writes, context cancellation); rejections and exhausted
// retries are outcomes, recorded on the returned row.
func (e *Executor) Submit(ctx context.Context, instr model.ChildOrderInstruction) (*model.ReplicaOrder, error) {
	order, err := e.ensureRow(ctx, instr)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return order, nil
	}
	return order, e.drive(ctx, order)
}

// RecordSkip persists a SKIPPED row for an instruction-sized order that
// fell below the market minimum. Idempotent on the key.
func (e *Executor) RecordSkip(ctx context.Context, instr model.ChildOrderInstruction, reason string) error {
	now := time.Now().UTC()
	order := rowFromInstruction(instr, now)
	order.Status = model.StatusSkipped
	order.LastError = reason

	err := e.ledger.Create(ctx, order)
	if errors.Is(err, ledger.ErrDuplicateKey) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recording skip: %w", err)
	}
	e.notify(order)
	return nil
}

// Recover re-drives every non-terminal ledger row. Called once on
// startup before the feed starts delivering new trades.
func (e *Executor) Recover(ctx context.Context) (int, error) {
	rows, err := e.ledger.ListUnresolved(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing unresolved orders: %w", err)
	}

	for _, order := range rows {
		e.logger.Info("resuming unresolved replica order",
			"key", order.IdempotencyKey,
			"follower", order.FollowerID,
			"status", order.Status,
		)
		if err := e.drive(ctx, order); err != nil {
			return 0, err
		}
		e.recovered.Add(1)
	}
	return len(rows), nil
}

// ensureRow finds or creates the ledger row for an instruction.
func (e *Executor) ensureRow(ctx context.Context, instr model.ChildOrderInstruction) (*model.ReplicaOrder, error) {
	order, err := e.ledger.GetByKey(ctx, instr.IdempotencyKey)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("looking up replica order: %w", err)
	}

	order = rowFromInstruction(instr, time.Now().UTC())
	err = e.ledger.Create(ctx, order)
	if errors.Is(err, ledger.ErrDuplicateKey) {
		// Lost a race with another submission of the same key.
		return e.ledger.GetByKey(ctx, instr.IdempotencyKey)
	}
	if err != nil {
		return nil, fmt.Errorf("creating replica order: %w", err)
	}
	return order, nil
}

// drive runs the attempt loop until the row is terminal or the context
// is cancelled. A cancelled run leaves the row SUBMITTED for Recover.
func (e *Executor) drive(ctx context.Context, order *model.ReplicaOrder) error {
	backoff := e.cfg.BackoffBase

	for order.Attempts < e.cfg.MaxAttempts {
		if order.Attempts > 0 {
			e.retries.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter(backoff)):
			}
			backoff *= 2
			if backoff > e.cfg.BackoffMax {
				backoff = e.cfg.BackoffMax
			}
		}

		// Persist the attempt before it goes on the wire so a crash
		// leaves the row unresolved rather than silently lost.
		order.Attempts++
		order.Status = model.StatusSubmitted
		order.UpdatedAt = time.Now().UTC()
		if err := e.ledger.Update(ctx, order); err != nil {
			return fmt.Errorf("recording attempt: %w", err)
		}
		e.submitted.Add(1)
		e.notify(order)

		resp, err := e.exchange.PostOrder(ctx, api.OrderRequest{
			Market:        order.Market,
			Side:          order.Side,
			Price:         order.Price,
			Size:          order.Size,
			ClientOrderID: order.IdempotencyKey,
			Owner:         order.FollowerID,
		})
		if err == nil {
			return e.resolve(ctx, order, model.StatusAccepted, resp.OrderID, "")
		}

		var rejection *api.OrderRejection
		if errors.As(err, &rejection) {
			e.logger.Info("order rejected",
				"key", order.IdempotencyKey,
				"follower", order.FollowerID,
				"error", rejection,
			)
			return e.resolve(ctx, order, model.StatusRejected, "", rejection.Error())
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Transient or ambiguous. The order may have landed; check
		// before burning another attempt.
		order.LastError = err.Error()
		e.logger.Warn("order submission failed",
			"key", order.IdempotencyKey,
			"follower", order.FollowerID,
			"attempt", order.Attempts,
			"error", err,
		)
		if found, resp := e.reconcile(ctx, order.IdempotencyKey); found {
			return e.resolve(ctx, order, model.StatusAccepted, resp.OrderID, "")
		}
	}

	return e.resolve(ctx, order, model.StatusFailed, "", order.LastError)
}

// reconcile asks the exchange whether an order with this client order id
// exists. Lookup failures are treated as not found; the retry loop will
// resubmit under the same key and the exchange deduplicates.
func (e *Executor) reconcile(ctx context.Context, key string) (bool, *api.OrderResponse) {
	resp, err := e.exchange.GetOrder(ctx, key)
	if err != nil || resp == nil || !resp.Success || resp.OrderID == "" {
		return false, nil
	}
	e.logger.Info("ambiguous submission reconciled as accepted",
		"key", key,
		"order_id", resp.OrderID,
	)
	return true, resp
}

func (e *Executor) resolve(ctx context.Context, order *model.ReplicaOrder, status model.ReplicaStatus, exchangeOrderID, lastError string) error {
	order.Status = status
	order.ExchangeOrderID = exchangeOrderID
	order.LastError = lastError
	order.UpdatedAt = time.Now().UTC()

	if err := e.ledger.Update(ctx, order); err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}

	switch status {
	case model.StatusAccepted:
		e.accepted.Add(1)
	case model.StatusRejected:
		e.rejected.Add(1)
	case model.StatusFailed:
		e.failed.Add(1)
	}
	e.notify(order)
	return nil
}

func (e *Executor) notify(order *model.ReplicaOrder) {
	if e.sink == nil {
		return
	}
	cp := *order
	e.sink.ReplicaUpdated(&cp)
}

func rowFromInstruction(instr model.ChildOrderInstruction, now time.Time) *model.ReplicaOrder {
	return &model.ReplicaOrder{
		ID:             uuid.New(),
		IdempotencyKey: instr.IdempotencyKey,
		FollowerID:     instr.FollowerID,
		LeaderID:       instr.LeaderID,
		Market:         instr.Market,
		Side:           instr.Side,
		Price:          instr.Price,
		Size:           instr.Size,
		Fingerprint:    instr.Fingerprint,
		LeaderTradeTS:  instr.LeaderTradeTS,
		Status:         model.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// jitter spreads a backoff delay over [d/2, 3d/2) so synchronized
// retries fan out.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}
