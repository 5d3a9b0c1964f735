package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the taker side of a trade or order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a wire-format side string.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy", "B":
		return SideBuy, nil
	case "SELL", "sell", "S":
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// LeaderAccount is a trading account whose executions are mirrored.
// Deactivation stops new replication but does not retract in-flight orders.
type LeaderAccount struct {
	ID          string `json:"id"`      // Primary key (exchange address)
	Address     string `json:"address"` // On-chain address used for the feed subscription
	DisplayName string `json:"display_name"`
	Active      bool   `json:"active"`
}

// FollowerSubscription links one follower account to one leader.
// At most one subscription exists per (follower, leader) pair.
type FollowerSubscription struct {
	FollowerID  string          `json:"follower_id"`
	LeaderID    string          `json:"leader_id"`
	ScaleFactor decimal.Decimal `json:"scale_factor"` // Ratio applied to leader trade size
	MaxSize     decimal.Decimal `json:"max_size"`     // Per-order size cap; zero means uncapped
	Active      bool            `json:"active"`
}

// LeaderTrade is a normalized execution admitted from the feed.
// Immutable once past the dedup gate.
type LeaderTrade struct {
	LeaderID    string
	EventID     string // Exchange event id, empty when the feed supplied none
	Market      string // Market/token identifier
	Side        Side
	Price       decimal.Decimal
	Size        decimal.Decimal
	ExchangeTS  int64 // Exchange timestamp (µs since epoch)
	Fingerprint Fingerprint
	ReceivedAt  time.Time // Local receive time
}

// ChildOrderInstruction is a planned replica order for one follower,
// derived from one admitted leader trade. Transient; only the resulting
// ReplicaOrder is persisted.
type ChildOrderInstruction struct {
	FollowerID     string
	LeaderID       string
	Market         string
	Side           Side // Mirrors the leader
	Price          decimal.Decimal
	Size           decimal.Decimal // Scaled and clamped
	IdempotencyKey string
	Fingerprint    Fingerprint // Originating trade fingerprint
	LeaderTradeTS  int64       // Originating trade exchange timestamp (µs)
}

// ReplicaStatus is the lifecycle state of a ReplicaOrder.
type ReplicaStatus string

const (
	StatusPending   ReplicaStatus = "PENDING"   // Row created, no wire attempt yet
	StatusSubmitted ReplicaStatus = "SUBMITTED" // At least one wire attempt, outcome unknown
	StatusAccepted  ReplicaStatus = "ACCEPTED"  // Exchange accepted, order id recorded
	StatusRejected  ReplicaStatus = "REJECTED"  // Exchange rejected, not retried
	StatusFailed    ReplicaStatus = "FAILED"    // Transient retries exhausted
	StatusSkipped   ReplicaStatus = "SKIPPED"   // Planned size below minimum unit, never submitted
)

// Terminal reports whether the status admits no further transitions.
func (s ReplicaStatus) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// ReplicaOrder is the persisted outcome of submitting (or skipping) a
// ChildOrderInstruction. Created on first submission attempt, mutated only
// by the executor, never deleted.
type ReplicaOrder struct {
	ID              uuid.UUID
	IdempotencyKey  string // Unique; hash(fingerprint, follower)
	FollowerID      string
	LeaderID        string
	Market          string
	Side            Side
	Price           decimal.Decimal
	Size            decimal.Decimal
	Fingerprint     Fingerprint // Back-reference to the originating leader trade
	LeaderTradeTS   int64       // Originating trade exchange timestamp (µs)
	Status          ReplicaStatus
	ExchangeOrderID string // Empty until accepted
	Attempts        int
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
