package feed

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/polymirror/engine/internal/model"
)

// stubLeaders is a fixed LeaderSource.
type stubLeaders struct {
	mu      sync.Mutex
	leaders []model.LeaderAccount
}

func (s *stubLeaders) ActiveLeaders() []model.LeaderAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LeaderAccount(nil), s.leaders...)
}

func (s *stubLeaders) set(leaders []model.LeaderAccount) {
	s.mu.Lock()
	s.leaders = leaders
	s.mu.Unlock()
}

// stubClient replays scripted messages, then reports an error.
type stubClient struct {
	script   [][]byte
	messages chan TimestampedMessage
	errors   chan error
	once     sync.Once
}

func newStubClient(script [][]byte) *stubClient {
	return &stubClient{
		script:   script,
		messages: make(chan TimestampedMessage, len(script)+1),
		errors:   make(chan error, 1),
	}
}

func (s *stubClient) Connect(ctx context.Context) error {
	s.once.Do(func() {
		for _, data := range s.script {
			s.messages <- TimestampedMessage{Data: data, ReceivedAt: time.Now()}
		}
	})
	return nil
}

func (s *stubClient) Close() error                        { return nil }
func (s *stubClient) Send(data []byte) error              { return nil }
func (s *stubClient) Messages() <-chan TimestampedMessage { return s.messages }
func (s *stubClient) Errors() <-chan error                { return s.errors }
func (s *stubClient) IsConnected() bool                   { return true }

func testIngestor(leaders LeaderSource) *Ingestor {
	cfg := DefaultIngestorConfig("ws://test")
	cfg.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.ReconnectMaxDelay = 20 * time.Millisecond
	cfg.ReconcileInterval = 10 * time.Millisecond
	return NewIngestor(cfg, leaders, slog.Default())
}

func TestNormalize_Trade(t *testing.T) {
	ing := testIngestor(&stubLeaders{})
	leader := model.LeaderAccount{ID: "L1", Address: "0xleader"}

	raw := []byte(`{"event_type":"trade","event_id":"E1","market":"M1","side":"BUY","price":"0.37","size":"10","timestamp":1705320000000000}`)
	msg := TimestampedMessage{Data: raw, ReceivedAt: time.Now()}

	trade, ok := ing.normalize(leader, msg)
	if !ok {
		t.Fatal("normalize returned ok=false for valid trade")
	}
	if trade.LeaderID != "L1" {
		t.Errorf("LeaderID = %q, want L1", trade.LeaderID)
	}
	if trade.Market != "M1" {
		t.Errorf("Market = %q, want M1", trade.Market)
	}
	if trade.Side != model.SideBuy {
		t.Errorf("Side = %q, want BUY", trade.Side)
	}
	if trade.Price.String() != "0.37" || trade.Size.String() != "10" {
		t.Errorf("Price/Size = %s/%s, want 0.37/10", trade.Price, trade.Size)
	}
	if trade.Fingerprint != model.EventFingerprint("E1") {
		t.Errorf("Fingerprint = %q, want ev:E1", trade.Fingerprint)
	}
}

func TestNormalize_CompositeFallback(t *testing.T) {
	ing := testIngestor(&stubLeaders{})
	leader := model.LeaderAccount{ID: "L1"}

	raw := []byte(`{"event_type":"trade","market":"M1","side":"SELL","price":"0.50","size":"3","timestamp":1705320000000000}`)

	trade, ok := ing.normalize(leader, TimestampedMessage{Data: raw, ReceivedAt: time.Now()})
	if !ok {
		t.Fatal("normalize returned ok=false")
	}
	if len(trade.Fingerprint) < 3 || trade.Fingerprint[:3] != "cx:" {
		t.Errorf("Fingerprint = %q, want composite cx: form", trade.Fingerprint)
	}
}

func TestNormalize_SkipsNonTradeFrames(t *testing.T) {
	ing := testIngestor(&stubLeaders{})
	leader := model.LeaderAccount{ID: "L1"}

	if _, ok := ing.normalize(leader, TimestampedMessage{Data: []byte(`{"event_type":"subscribed"}`)}); ok {
		t.Error("subscription ack normalized as trade")
	}
	if ing.Stats().Malformed != 0 {
		t.Error("non-trade frame counted as malformed")
	}
}

func TestNormalize_CountsMalformed(t *testing.T) {
	ing := testIngestor(&stubLeaders{})
	leader := model.LeaderAccount{ID: "L1"}

	malformed := [][]byte{
		[]byte(`not json`),
		[]byte(`{"event_type":"trade","side":"HOLD","price":"0.1","size":"1"}`),
		[]byte(`{"event_type":"trade","side":"BUY","price":"abc","size":"1"}`),
		[]byte(`{"event_type":"trade","side":"BUY","price":"0.1","size":"-1"}`),
	}

	for _, raw := range malformed {
		if _, ok := ing.normalize(leader, TimestampedMessage{Data: raw}); ok {
			t.Errorf("normalize accepted malformed event %s", raw)
		}
	}

	if got := ing.Stats().Malformed; got != int64(len(malformed)) {
		t.Errorf("Malformed = %d, want %d", got, len(malformed))
	}
}

func TestIngestor_EmitsTrades(t *testing.T) {
	leaders := &stubLeaders{leaders: []model.LeaderAccount{{ID: "L1", Address: "0xleader", Active: true}}}
	ing := testIngestor(leaders)

	ing.newClient = func(cfg ClientConfig, logger *slog.Logger) Client {
		return newStubClient([][]byte{
			[]byte(`{"event_type":"trade","event_id":"E1","market":"M1","side":"BUY","price":"0.37","size":"10","timestamp":1}`),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ing.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case trade := <-ing.Trades():
		if trade.Fingerprint != model.EventFingerprint("E1") {
			t.Errorf("Fingerprint = %q, want ev:E1", trade.Fingerprint)
		}
	case <-time.After(time.Second):
		t.Fatal("no trade emitted within 1s")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	cancel()
	if err := ing.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestWatch_BackoffResetsAfterSuccessfulSubscribe(t *testing.T) {
	leaders := &stubLeaders{leaders: []model.LeaderAccount{{ID: "L1", Active: true}}}
	cfg := DefaultIngestorConfig("ws://test")
	cfg.ReconnectBaseDelay = 20 * time.Millisecond
	cfg.ReconnectMaxDelay = 500 * time.Millisecond
	cfg.ReconcileInterval = time.Hour
	ing := NewIngestor(cfg, leaders, slog.Default())

	// Every session connects and subscribes, then dies. With the backoff
	// returning to base after each successful subscribe, the gaps between
	// sessions stay near the base delay instead of climbing to the cap.
	var mu sync.Mutex
	var connects []time.Time
	ing.newClient = func(cfg ClientConfig, logger *slog.Logger) Client {
		mu.Lock()
		connects = append(connects, time.Now())
		mu.Unlock()
		c := newStubClient(nil)
		c.errors <- ErrStaleConnection
		return c
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ing.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	const sessions = 7
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(connects)
		mu.Unlock()
		if n >= sessions {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := ing.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(connects) < sessions {
		t.Fatalf("only %d sessions within 2s, reconnects stalled", len(connects))
	}
	for i := 1; i < sessions; i++ {
		gap := connects[i].Sub(connects[i-1])
		if gap > 150*time.Millisecond {
			t.Errorf("reconnect %d waited %v, backoff not reset to base", i, gap)
		}
	}
}

func TestHandleMessage_ResumeMarkerIsExchangeEventID(t *testing.T) {
	ing := testIngestor(&stubLeaders{})
	w := &watcher{leader: model.LeaderAccount{ID: "L1"}}
	ctx := context.Background()

	withID := []byte(`{"event_type":"trade","event_id":"E7","market":"M1","side":"BUY","price":"0.37","size":"10","timestamp":1}`)
	ing.handleMessage(ctx, w, TimestampedMessage{Data: withID, ReceivedAt: time.Now()})
	if w.resumeAfter != "E7" {
		t.Fatalf("resumeAfter = %q, want raw event id E7", w.resumeAfter)
	}

	// An id-less event has no server-side position; it must not clobber
	// the last real marker.
	noID := []byte(`{"event_type":"trade","market":"M1","side":"SELL","price":"0.50","size":"3","timestamp":2}`)
	ing.handleMessage(ctx, w, TimestampedMessage{Data: noID, ReceivedAt: time.Now()})
	if w.resumeAfter != "E7" {
		t.Errorf("resumeAfter = %q after id-less event, want E7", w.resumeAfter)
	}
}

func TestIngestor_ReconcileStopsDeactivatedLeader(t *testing.T) {
	leaders := &stubLeaders{leaders: []model.LeaderAccount{{ID: "L1", Active: true}}}
	ing := testIngestor(leaders)
	ing.newClient = func(cfg ClientConfig, logger *slog.Logger) Client {
		return newStubClient(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ing.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if got := ing.Stats().Watchers; got != 1 {
		t.Fatalf("Watchers = %d, want 1", got)
	}

	leaders.set(nil)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ing.Stats().Watchers == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := ing.Stats().Watchers; got != 0 {
		t.Errorf("Watchers = %d after deactivation, want 0", got)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	cancel()
	if err := ing.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
