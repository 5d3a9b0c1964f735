package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polymirror/engine/internal/model"
)

// fakeConn records written frames; fail makes every write error.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("write failed")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) frame(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[i]
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func testLeaderTrade() model.LeaderTrade {
	return model.LeaderTrade{
		LeaderID:    "L1",
		Market:      "M1",
		Side:        model.SideBuy,
		Price:       decimal.RequireFromString("0.37"),
		Size:        decimal.RequireFromString("10"),
		ExchangeTS:  1705320000000000,
		Fingerprint: model.EventFingerprint("E1"),
	}
}

func TestHub_DeliversToObserver(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	defer hub.Close()

	conn := &fakeConn{}
	hub.Attach(conn)

	hub.TradeAdmitted(testLeaderTrade())

	waitFor(t, func() bool { return conn.frameCount() == 1 })

	var event Event
	if err := json.Unmarshal(conn.frame(0), &event); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if event.Type != EventTradeAdmitted {
		t.Errorf("Type = %s, want %s", event.Type, EventTradeAdmitted)
	}
	if event.Trade == nil || event.Trade.LeaderID != "L1" || event.Trade.Size != "10" {
		t.Errorf("Trade body = %+v", event.Trade)
	}
}

func TestHub_ReplicaUpdateEvent(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	defer hub.Close()

	conn := &fakeConn{}
	hub.Attach(conn)

	hub.ReplicaUpdated(&model.ReplicaOrder{
		IdempotencyKey:  "k1",
		FollowerID:      "F1",
		LeaderID:        "L1",
		Market:          "M1",
		Side:            model.SideSell,
		Price:           decimal.RequireFromString("0.5"),
		Size:            decimal.RequireFromString("3"),
		Status:          model.StatusAccepted,
		ExchangeOrderID: "X-1",
		Attempts:        1,
	})

	waitFor(t, func() bool { return conn.frameCount() == 1 })

	var event Event
	if err := json.Unmarshal(conn.frame(0), &event); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if event.Type != EventReplicaUpdate {
		t.Errorf("Type = %s, want %s", event.Type, EventReplicaUpdate)
	}
	if event.Replica == nil || event.Replica.Status != "ACCEPTED" || event.Replica.FollowerID != "F1" {
		t.Errorf("Replica body = %+v", event.Replica)
	}
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	defer hub.Close()

	conns := []*fakeConn{{}, {}, {}}
	for _, c := range conns {
		hub.Attach(c)
	}

	hub.TradeAdmitted(testLeaderTrade())

	for _, c := range conns {
		waitFor(t, func() bool { return c.frameCount() == 1 })
	}
	if got := hub.Stats().Observers; got != 3 {
		t.Errorf("Observers = %d, want 3", got)
	}
}

func TestHub_FailingObserverDetached(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	defer hub.Close()

	bad := &fakeConn{fail: true}
	good := &fakeConn{}
	hub.Attach(bad)
	hub.Attach(good)

	hub.TradeAdmitted(testLeaderTrade())

	waitFor(t, func() bool { return hub.Stats().Observers == 1 })
	waitFor(t, func() bool { return good.frameCount() == 1 })

	if !bad.isClosed() {
		t.Error("failing observer connection not closed")
	}

	// Later events still reach the surviving observer.
	hub.TradeAdmitted(testLeaderTrade())
	waitFor(t, func() bool { return good.frameCount() == 2 })
}

func TestHub_Detach(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	defer hub.Close()

	conn := &fakeConn{}
	id := hub.Attach(conn)
	hub.Detach(id)

	waitFor(t, func() bool { return conn.isClosed() })
	if got := hub.Stats().Observers; got != 0 {
		t.Errorf("Observers = %d, want 0", got)
	}
}

func TestHub_PublishWithoutObservers(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	defer hub.Close()

	// Must not block or panic.
	hub.TradeAdmitted(testLeaderTrade())
	if got := hub.Stats().Published; got != 1 {
		t.Errorf("Published = %d, want 1", got)
	}
}

func TestTee_FansOut(t *testing.T) {
	a := NewHub(DefaultHubConfig(), nil)
	b := NewHub(DefaultHubConfig(), nil)
	defer a.Close()
	defer b.Close()

	sink := Tee{a, b}
	sink.TradeAdmitted(testLeaderTrade())

	if a.Stats().Published != 1 || b.Stats().Published != 1 {
		t.Errorf("Published = %d/%d, want 1/1", a.Stats().Published, b.Stats().Published)
	}
}
