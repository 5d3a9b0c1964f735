package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Fingerprint is the deduplication key for a trade event. Exactly one
// LeaderTrade is admitted per fingerprint; re-deliveries are discarded.
type Fingerprint string

// EventFingerprint derives a fingerprint from an exchange-assigned event id.
// Preferred form whenever the exchange provides a stable id.
func EventFingerprint(eventID string) Fingerprint {
	return Fingerprint("ev:" + eventID)
}

// CompositeFingerprint derives a fingerprint from trade attributes for
// exchanges that may re-deliver the same fill under a different event id.
// The exchange timestamp is bucketed so that second-scale jitter between
// deliveries still collapses to one fingerprint.
func CompositeFingerprint(market string, side Side, price, size decimal.Decimal, exchangeTS int64, bucket time.Duration) Fingerprint {
	if bucket <= 0 {
		bucket = time.Second
	}
	bucketed := exchangeTS / bucket.Microseconds()

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d", market, side, price.String(), size.String(), bucketed)
	return Fingerprint("cx:" + hex.EncodeToString(h.Sum(nil))[:32])
}

// IdempotencyKey derives the client order id for one (trade, follower) pair.
// Deterministic: re-planning the same admitted trade reproduces the same key.
func IdempotencyKey(fp Fingerprint, followerID string) string {
	h := sha256.Sum256([]byte(string(fp) + ":" + followerID))
	return hex.EncodeToString(h[:])[:32]
}
