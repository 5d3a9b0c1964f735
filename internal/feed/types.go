package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// subscribeFrame is the control frame that opens a user-trade subscription
// for one leader address. When ResumeAfter is set the exchange replays
// events after that marker, if it supports resumption at all; otherwise we
// accept a bounded re-delivery window and rely on the dedup gate.
type subscribeFrame struct {
	Type        string `json:"type"` // "subscribe"
	Channel     string `json:"channel"`
	Address     string `json:"address"`
	ResumeAfter string `json:"resume_after,omitempty"`
}

// tradeEventWire is one trade-execution event from the user channel.
type tradeEventWire struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Market    string `json:"market"` // Market/token identifier
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp int64  `json:"timestamp"` // Exchange time (µs since epoch)
}
