package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polymirror/engine/internal/api"
	"github.com/polymirror/engine/internal/ledger"
	"github.com/polymirror/engine/internal/model"
)

// fakeExchange replays a scripted sequence of PostOrder outcomes.
type fakeExchange struct {
	mu        sync.Mutex
	script    []func() (*api.OrderResponse, error)
	posts     int
	getOrders int
	getResp   *api.OrderResponse // what GetOrder returns, nil means not found
}

func (f *fakeExchange) PostOrder(ctx context.Context, req api.OrderRequest) (*api.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.posts
	f.posts++
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx]()
}

func (f *fakeExchange) GetOrder(ctx context.Context, clientOrderID string) (*api.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getOrders++
	if f.getResp == nil {
		return &api.OrderResponse{Success: false}, nil
	}
	return f.getResp, nil
}

func (f *fakeExchange) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts
}

type recordingSink struct {
	mu     sync.Mutex
	orders []*model.ReplicaOrder
}

func (s *recordingSink) ReplicaUpdated(order *model.ReplicaOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, order)
}

func (s *recordingSink) last() *model.ReplicaOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.orders) == 0 {
		return nil
	}
	return s.orders[len(s.orders)-1]
}

func accept(orderID string) func() (*api.OrderResponse, error) {
	return func() (*api.OrderResponse, error) {
		return &api.OrderResponse{Success: true, OrderID: orderID, Status: "live"}, nil
	}
}

func transient() func() (*api.OrderResponse, error) {
	return func() (*api.OrderResponse, error) {
		return nil, &api.APIError{StatusCode: 503, Message: "unavailable"}
	}
}

func reject(code, msg string) func() (*api.OrderResponse, error) {
	return func() (*api.OrderResponse, error) {
		return nil, &api.OrderRejection{Code: code, Message: msg}
	}
}

func fastConfig() Config {
	return Config{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}
}

func testInstruction(follower string) model.ChildOrderInstruction {
	fp := model.EventFingerprint("E1")
	return model.ChildOrderInstruction{
		FollowerID:     follower,
		LeaderID:       "L1",
		Market:         "M1",
		Side:           model.SideBuy,
		Price:          decimal.RequireFromString("0.37"),
		Size:           decimal.RequireFromString("10"),
		IdempotencyKey: model.IdempotencyKey(fp, follower),
		Fingerprint:    fp,
		LeaderTradeTS:  1705320000000000,
	}
}

func TestSubmit_AcceptedFirstTry(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryLedger()
	exch := &fakeExchange{script: []func() (*api.OrderResponse, error){accept("X-1")}}
	sink := &recordingSink{}
	exec := New(fastConfig(), store, exch, sink, nil)

	order, err := exec.Submit(ctx, testInstruction("F1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if order.Status != model.StatusAccepted {
		t.Errorf("Status = %s, want ACCEPTED", order.Status)
	}
	if order.ExchangeOrderID != "X-1" {
		t.Errorf("ExchangeOrderID = %q, want X-1", order.ExchangeOrderID)
	}
	if order.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", order.Attempts)
	}
	if last := sink.last(); last == nil || last.Status != model.StatusAccepted {
		t.Error("sink did not receive the accepted order")
	}
	if got := exec.Stats().Accepted; got != 1 {
		t.Errorf("Stats.Accepted = %d, want 1", got)
	}
}

func TestSubmit_TransientThenAccepted(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryLedger()
	exch := &fakeExchange{script: []func() (*api.OrderResponse, error){
		transient(),
		accept("X-2"),
	}}
	exec := New(fastConfig(), store, exch, nil, nil)

	order, err := exec.Submit(ctx, testInstruction("F1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if order.Status != model.StatusAccepted {
		t.Errorf("Status = %s, want ACCEPTED", order.Status)
	}
	if order.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", order.Attempts)
	}
	if got := exec.Stats().Retries; got != 1 {
		t.Errorf("Stats.Retries = %d, want 1", got)
	}
}

func TestSubmit_SinkSeesEveryTransition(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryLedger()
	exch := &fakeExchange{script: []func() (*api.OrderResponse, error){
		transient(),
		accept("X-4"),
	}}
	sink := &recordingSink{}
	exec := New(fastConfig(), store, exch, sink, nil)

	if _, err := exec.Submit(ctx, testInstruction("F1")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sink.mu.Lock()
	var statuses []model.ReplicaStatus
	for _, o := range sink.orders {
		statuses = append(statuses, o.Status)
	}
	sink.mu.Unlock()

	// One SUBMITTED per attempt, then the terminal outcome.
	want := []model.ReplicaStatus{model.StatusSubmitted, model.StatusSubmitted, model.StatusAccepted}
	if len(statuses) != len(want) {
		t.Fatalf("sink saw %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("sink saw %v, want %v", statuses, want)
		}
	}
}

func TestSubmit_RejectionNotRetried(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryLedger()
	exch := &fakeExchange{script: []func() (*api.OrderResponse, error){
		reject("INSUFFICIENT_BALANCE", "balance too low"),
		accept("never"),
	}}
	exec := New(fastConfig(), store, exch, nil, nil)

	order, err := exec.Submit(ctx, testInstruction("F1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if order.Status != model.StatusRejected {
		t.Errorf("Status = %s, want REJECTED", order.Status)
	}
	if exch.postCount() != 1 {
		t.Errorf("posts = %d, want 1 (rejections are permanent)", exch.postCount())
	}
	if order.LastError == "" {
		t.Error("LastError not recorded")
	}
}

func TestSubmit_ExhaustionFails(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryLedger()
	exch := &fakeExchange{script: []func() (*api.OrderResponse, error){transient()}}
	exec := New(fastConfig(), store, exch, nil, nil)

	order, err := exec.Submit(ctx, testInstruction("F1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if order.Status != model.StatusFailed {
		t.Errorf("Status = %s, want FAILED", order.Status)
	}
	if order.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", order.Attempts)
	}
	if exch.postCount() != 3 {
		t.Errorf("posts = %d, want 3", exch.postCount())
	}
}

func TestSubmit_ResubmitShortCircuits(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryLedger()
	exch := &fakeExchange{script: []func() (*api.OrderResponse, error){accept("X-3")}}
	exec := New(fastConfig(), store, exch, nil, nil)

	instr := testInstruction("F1")
	first, err := exec.Submit(ctx, instr)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	second, err := exec.Submit(ctx, instr)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if second.ExchangeOrderID != first.ExchangeOrderID || second.Status != model.StatusAccepted {
		t.Errorf("resubmit returned different outcome: %+v", second)
	}
	if exch.postCount() != 1 {
		t.Errorf("posts = %d, want 1 (terminal rows never resubmit)", exch.postCount())
	}
}

func TestSubmit_TransientReconciledAsAccepted(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryLedger()
	exch := &fakeExchange{
		script:  []func() (*api.OrderResponse, error){transient()},
		getResp: &api.OrderResponse{Success: true, OrderID: "X-land", Status: "live"},
	}
	exec := New(fastConfig(), store, exch, nil, nil)

	order, err := exec.Submit(ctx, testInstruction("F1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if order.Status != model.StatusAccepted {
		t.Errorf("Status = %s, want ACCEPTED via reconciliation", order.Status)
	}
	if order.ExchangeOrderID != "X-land" {
		t.Errorf("ExchangeOrderID = %q, want X-land", order.ExchangeOrderID)
	}
	if exch.postCount() != 1 {
		t.Errorf("posts = %d, want 1", exch.postCount())
	}
}

func TestRecordSkip(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryLedger()
	sink := &recordingSink{}
	exec := New(fastConfig(), store, &fakeExchange{}, sink, nil)

	instr := testInstruction("F1")
	if err := exec.RecordSkip(ctx, instr, "size 0.01 below minimum 0.1"); err != nil {
		t.Fatalf("RecordSkip: %v", err)
	}
	// Idempotent.
	if err := exec.RecordSkip(ctx, instr, "size 0.01 below minimum 0.1"); err != nil {
		t.Fatalf("second RecordSkip: %v", err)
	}

	row, err := store.GetByKey(ctx, instr.IdempotencyKey)
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if row.Status != model.StatusSkipped {
		t.Errorf("Status = %s, want SKIPPED", row.Status)
	}
	if row.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 (skips never hit the wire)", row.Attempts)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestRecover_ResumesUnresolved(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryLedger()

	// Simulate a crash: row persisted as SUBMITTED, outcome unknown.
	stale := rowFromInstruction(testInstruction("F1"), time.Now().UTC())
	stale.Status = model.StatusSubmitted
	stale.Attempts = 1
	if err := store.Create(ctx, stale); err != nil {
		t.Fatalf("Create: %v", err)
	}
	done := rowFromInstruction(testInstruction("F2"), time.Now().UTC())
	done.Status = model.StatusAccepted
	if err := store.Create(ctx, done); err != nil {
		t.Fatalf("Create: %v", err)
	}

	exch := &fakeExchange{script: []func() (*api.OrderResponse, error){accept("X-9")}}
	exec := New(fastConfig(), store, exch, nil, nil)

	n, err := exec.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Errorf("Recover = %d rows, want 1", n)
	}

	row, _ := store.GetByKey(ctx, stale.IdempotencyKey)
	if row.Status != model.StatusAccepted {
		t.Errorf("recovered Status = %s, want ACCEPTED", row.Status)
	}
	if row.Attempts != 2 {
		t.Errorf("recovered Attempts = %d, want 2", row.Attempts)
	}
}

func TestSubmit_ContextCancelLeavesUnresolved(t *testing.T) {
	store := ledger.NewMemoryLedger()
	exch := &fakeExchange{script: []func() (*api.OrderResponse, error){transient()}}
	cfg := Config{MaxAttempts: 5, BackoffBase: time.Hour, BackoffMax: time.Hour}
	exec := New(cfg, store, exch, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	instr := testInstruction("F1")

	errCh := make(chan error, 1)
	go func() {
		_, err := exec.Submit(ctx, instr)
		errCh <- err
	}()

	// Let the first attempt fail, then cancel during backoff.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Submit returned nil after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after cancellation")
	}

	row, err := store.GetByKey(context.Background(), instr.IdempotencyKey)
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if row.Status.Terminal() {
		t.Errorf("Status = %s, want non-terminal for Recover", row.Status)
	}
}
