package broadcast

import (
	"time"

	"github.com/polymirror/engine/internal/model"
)

// Event types emitted to observers.
const (
	EventTradeAdmitted = "trade_admitted"
	EventReplicaUpdate = "replica_update"
)

// Event is one observer-facing message.
type Event struct {
	Type    string       `json:"type"`
	At      time.Time    `json:"at"`
	Trade   *TradeBody   `json:"trade,omitempty"`
	Replica *ReplicaBody `json:"replica,omitempty"`
}

// TradeBody describes an admitted leader trade.
type TradeBody struct {
	LeaderID    string `json:"leader_id"`
	Market      string `json:"market"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	Fingerprint string `json:"fingerprint"`
	ExchangeTS  int64  `json:"exchange_ts"`
}

// ReplicaBody describes a replica order state change.
type ReplicaBody struct {
	IdempotencyKey  string `json:"idempotency_key"`
	FollowerID      string `json:"follower_id"`
	LeaderID        string `json:"leader_id"`
	Market          string `json:"market"`
	Side            string `json:"side"`
	Price           string `json:"price"`
	Size            string `json:"size"`
	Status          string `json:"status"`
	ExchangeOrderID string `json:"exchange_order_id,omitempty"`
	Attempts        int    `json:"attempts"`
	LastError       string `json:"last_error,omitempty"`
}

// NewTradeAdmitted builds a trade_admitted event.
func NewTradeAdmitted(trade model.LeaderTrade) Event {
	return Event{
		Type: EventTradeAdmitted,
		At:   time.Now().UTC(),
		Trade: &TradeBody{
			LeaderID:    trade.LeaderID,
			Market:      trade.Market,
			Side:        string(trade.Side),
			Price:       trade.Price.String(),
			Size:        trade.Size.String(),
			Fingerprint: string(trade.Fingerprint),
			ExchangeTS:  trade.ExchangeTS,
		},
	}
}

// NewReplicaUpdate builds a replica_update event.
func NewReplicaUpdate(order *model.ReplicaOrder) Event {
	return Event{
		Type: EventReplicaUpdate,
		At:   time.Now().UTC(),
		Replica: &ReplicaBody{
			IdempotencyKey:  order.IdempotencyKey,
			FollowerID:      order.FollowerID,
			LeaderID:        order.LeaderID,
			Market:          order.Market,
			Side:            string(order.Side),
			Price:           order.Price.String(),
			Size:            order.Size.String(),
			Status:          string(order.Status),
			ExchangeOrderID: order.ExchangeOrderID,
			Attempts:        order.Attempts,
			LastError:       order.LastError,
		},
	}
}
