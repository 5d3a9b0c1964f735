package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polymirror/engine/internal/model"
)

// LeaderSource provides the current set of active leader accounts.
// Implemented by the subscription cache.
type LeaderSource interface {
	ActiveLeaders() []model.LeaderAccount
}

// IngestorConfig configures the Leader Feed Ingestor.
type IngestorConfig struct {
	WSURL              string
	BufferSize         int           // Output channel capacity
	ReconnectBaseDelay time.Duration // First reconnect delay
	ReconnectMaxDelay  time.Duration // Backoff cap
	PingInterval       time.Duration
	PingTimeout        time.Duration
	ReconcileInterval  time.Duration // How often to diff watchers against active leaders
	CompositeBucket    time.Duration // Timestamp bucket for id-less fingerprints
}

// DefaultIngestorConfig returns sensible defaults.
func DefaultIngestorConfig(wsURL string) IngestorConfig {
	return IngestorConfig{
		WSURL:              wsURL,
		BufferSize:         1000,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		PingInterval:       15 * time.Second,
		PingTimeout:        30 * time.Second,
		ReconcileInterval:  5 * time.Second,
		CompositeBucket:    time.Second,
	}
}

// IngestorStats contains runtime statistics.
type IngestorStats struct {
	Watchers   int
	Connected  int
	Events     int64
	Malformed  int64
	Reconnects int64
}

// Ingestor maintains one supervised feed subscription per active leader and
// emits normalized LeaderTrade values.
type Ingestor struct {
	cfg     IngestorConfig
	leaders LeaderSource
	logger  *slog.Logger

	out chan model.LeaderTrade

	// Client factory, replaceable in tests.
	newClient func(ClientConfig, *slog.Logger) Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	watchers map[string]*watcher // leader ID -> watcher

	events     atomic.Int64
	malformed  atomic.Int64
	reconnects atomic.Int64
}

// watcher is the long-lived subscription task for a single leader.
type watcher struct {
	leader model.LeaderAccount
	cancel context.CancelFunc
	done   chan struct{}

	connected atomic.Bool

	// Exchange event id of the last trade seen on this subscription,
	// replayed on reconnect when the exchange supports resumption.
	// Stays empty until an id-bearing event arrives.
	mu          sync.Mutex
	resumeAfter string
}

// NewIngestor creates a new Leader Feed Ingestor.
func NewIngestor(cfg IngestorConfig, leaders LeaderSource, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1000
	}

	return &Ingestor{
		cfg:       cfg,
		leaders:   leaders,
		logger:    logger,
		out:       make(chan model.LeaderTrade, cfg.BufferSize),
		newClient: NewClient,
		watchers:  make(map[string]*watcher),
	}
}

// Trades returns the output channel of normalized leader trades.
func (i *Ingestor) Trades() <-chan model.LeaderTrade {
	return i.out
}

// Start begins watching all active leaders and reconciling periodically.
func (i *Ingestor) Start(ctx context.Context) error {
	i.ctx, i.cancel = context.WithCancel(ctx)

	i.reconcile()

	i.wg.Add(1)
	go i.reconcileLoop()

	i.logger.Info("feed ingestor started",
		"ws_url", i.cfg.WSURL,
		"watchers", len(i.watchers),
	)

	return nil
}

// Stop gracefully shuts down all watchers.
func (i *Ingestor) Stop(ctx context.Context) error {
	if i.cancel != nil {
		i.cancel()
	}

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		i.logger.Info("feed ingestor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (i *Ingestor) Stats() IngestorStats {
	i.mu.Lock()
	watchers := len(i.watchers)
	connected := 0
	for _, w := range i.watchers {
		if w.connected.Load() {
			connected++
		}
	}
	i.mu.Unlock()

	return IngestorStats{
		Watchers:   watchers,
		Connected:  connected,
		Events:     i.events.Load(),
		Malformed:  i.malformed.Load(),
		Reconnects: i.reconnects.Load(),
	}
}

// reconcileLoop periodically diffs running watchers against active leaders.
func (i *Ingestor) reconcileLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(i.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.ctx.Done():
			return
		case <-ticker.C:
			i.reconcile()
		}
	}
}

// reconcile starts watchers for newly active leaders and stops watchers for
// deactivated ones. Deactivation only stops new admission; in-flight
// executor work is untouched.
func (i *Ingestor) reconcile() {
	desired := make(map[string]model.LeaderAccount)
	for _, l := range i.leaders.ActiveLeaders() {
		desired[l.ID] = l
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	for id, leader := range desired {
		if _, ok := i.watchers[id]; !ok {
			i.startWatcherLocked(leader)
		}
	}

	for id, w := range i.watchers {
		if _, ok := desired[id]; !ok {
			i.logger.Info("leader deactivated, stopping watcher", "leader", id)
			w.cancel()
			delete(i.watchers, id)
		}
	}
}

func (i *Ingestor) startWatcherLocked(leader model.LeaderAccount) {
	ctx, cancel := context.WithCancel(i.ctx)
	w := &watcher{
		leader: leader,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	i.watchers[leader.ID] = w

	i.logger.Info("starting leader watcher", "leader", leader.ID, "address", leader.Address)

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer close(w.done)
		i.watch(ctx, w)
	}()
}

// watch runs one leader subscription, reconnecting forever with exponential
// backoff. The loop only exits on context cancellation.
func (i *Ingestor) watch(ctx context.Context, w *watcher) {
	backoff := i.cfg.ReconnectBaseDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		client := i.newClient(ClientConfig{
			URL:          i.cfg.WSURL,
			PingInterval: i.cfg.PingInterval,
			PingTimeout:  i.cfg.PingTimeout,
			BufferSize:   i.cfg.BufferSize,
		}, i.logger)

		subscribed, err := i.runSession(ctx, w, client)
		client.Close()
		w.connected.Store(false)

		if ctx.Err() != nil {
			return
		}

		// A session that made it past subscribe resets the backoff, so a
		// blip after days of stable connection waits the base delay, not
		// whatever the cap grew to during earlier outages.
		if subscribed {
			backoff = i.cfg.ReconnectBaseDelay
		}

		i.reconnects.Add(1)
		i.logger.Warn("feed session ended, reconnecting",
			"leader", w.leader.ID,
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > i.cfg.ReconnectMaxDelay {
			backoff = i.cfg.ReconnectMaxDelay
		}
	}
}

// runSession connects, subscribes, and consumes events until the connection
// fails. subscribed reports whether the subscribe frame made it onto the
// wire; the caller resets its reconnect backoff on that.
func (i *Ingestor) runSession(ctx context.Context, w *watcher, client Client) (subscribed bool, err error) {
	if err := client.Connect(ctx); err != nil {
		return false, err
	}
	w.connected.Store(true)

	w.mu.Lock()
	resume := w.resumeAfter
	w.mu.Unlock()

	frame, err := json.Marshal(subscribeFrame{
		Type:        "subscribe",
		Channel:     "user",
		Address:     w.leader.Address,
		ResumeAfter: resume,
	})
	if err != nil {
		return false, err
	}
	if err := client.Send(frame); err != nil {
		return false, err
	}

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-client.Errors():
			return true, err
		case msg, ok := <-client.Messages():
			if !ok {
				return true, ErrNotConnected
			}
			i.handleMessage(ctx, w, msg)
		}
	}
}

// handleMessage normalizes one raw message and emits the trade, if any.
func (i *Ingestor) handleMessage(ctx context.Context, w *watcher, msg TimestampedMessage) {
	trade, ok := i.normalize(w.leader, msg)
	if !ok {
		return
	}

	i.events.Add(1)

	// Only the exchange's own event id is a valid resume marker; a
	// composite fingerprint is a local hash the server cannot seek to.
	if trade.EventID != "" {
		w.mu.Lock()
		w.resumeAfter = trade.EventID
		w.mu.Unlock()
	}

	select {
	case i.out <- trade:
	case <-ctx.Done():
	}
}

// normalize parses a raw event into a LeaderTrade. Non-trade frames
// (subscription acks, heartbeats) return ok=false silently; unparseable
// trade frames are counted as malformed and dropped.
func (i *Ingestor) normalize(leader model.LeaderAccount, msg TimestampedMessage) (model.LeaderTrade, bool) {
	var wire tradeEventWire
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		i.malformed.Add(1)
		i.logger.Warn("malformed feed event", "leader", leader.ID, "error", err)
		return model.LeaderTrade{}, false
	}

	if wire.EventType != "trade" {
		return model.LeaderTrade{}, false
	}

	side, err := model.ParseSide(wire.Side)
	if err != nil {
		i.malformed.Add(1)
		i.logger.Warn("malformed feed event", "leader", leader.ID, "error", err)
		return model.LeaderTrade{}, false
	}

	price, err := decimal.NewFromString(wire.Price)
	if err != nil {
		i.malformed.Add(1)
		i.logger.Warn("malformed feed event", "leader", leader.ID, "field", "price", "error", err)
		return model.LeaderTrade{}, false
	}

	size, err := decimal.NewFromString(wire.Size)
	if err != nil || !size.IsPositive() {
		i.malformed.Add(1)
		i.logger.Warn("malformed feed event", "leader", leader.ID, "field", "size")
		return model.LeaderTrade{}, false
	}

	var fp model.Fingerprint
	if wire.EventID != "" {
		fp = model.EventFingerprint(wire.EventID)
	} else {
		// No stable id: fall back to the composite form so re-deliveries
		// still collapse to one fingerprint.
		fp = model.CompositeFingerprint(wire.Market, side, price, size, wire.Timestamp, i.cfg.CompositeBucket)
	}

	return model.LeaderTrade{
		LeaderID:    leader.ID,
		EventID:     wire.EventID,
		Market:      wire.Market,
		Side:        side,
		Price:       price,
		Size:        size,
		ExchangeTS:  wire.Timestamp,
		Fingerprint: fp,
		ReceivedAt:  msg.ReceivedAt,
	}, true
}
