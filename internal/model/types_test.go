package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"BUY", SideBuy, false},
		{"buy", SideBuy, false},
		{"B", SideBuy, false},
		{"SELL", SideSell, false},
		{"sell", SideSell, false},
		{"S", SideSell, false},
		{"HOLD", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSide(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSide(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSide(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReplicaStatus_Terminal(t *testing.T) {
	terminal := []ReplicaStatus{StatusAccepted, StatusRejected, StatusFailed, StatusSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}

	open := []ReplicaStatus{StatusPending, StatusSubmitted}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestEventFingerprint(t *testing.T) {
	fp := EventFingerprint("E1")
	if fp != "ev:E1" {
		t.Errorf("EventFingerprint = %q, want ev:E1", fp)
	}
}

func TestCompositeFingerprint_Deterministic(t *testing.T) {
	price := decimal.RequireFromString("0.37")
	size := decimal.RequireFromString("10")

	a := CompositeFingerprint("M1", SideBuy, price, size, 1705320000000000, time.Second)
	b := CompositeFingerprint("M1", SideBuy, price, size, 1705320000000000, time.Second)
	if a != b {
		t.Errorf("same inputs produced different fingerprints: %q vs %q", a, b)
	}

	// Different market must differ.
	c := CompositeFingerprint("M2", SideBuy, price, size, 1705320000000000, time.Second)
	if a == c {
		t.Error("different markets produced same fingerprint")
	}
}

func TestCompositeFingerprint_TimestampBucket(t *testing.T) {
	price := decimal.RequireFromString("0.50")
	size := decimal.RequireFromString("5")

	base := int64(1705320000000000)

	// 400ms apart, same 1s bucket.
	a := CompositeFingerprint("M1", SideBuy, price, size, base, time.Second)
	b := CompositeFingerprint("M1", SideBuy, price, size, base+400_000, time.Second)
	if a != b {
		t.Error("deliveries within the same bucket produced different fingerprints")
	}

	// 2s apart, different bucket.
	c := CompositeFingerprint("M1", SideBuy, price, size, base+2_000_000, time.Second)
	if a == c {
		t.Error("deliveries in different buckets produced same fingerprint")
	}
}

func TestIdempotencyKey(t *testing.T) {
	fp := EventFingerprint("E1")

	k1 := IdempotencyKey(fp, "F1")
	k2 := IdempotencyKey(fp, "F1")
	if k1 != k2 {
		t.Errorf("key not deterministic: %q vs %q", k1, k2)
	}
	if len(k1) != 32 {
		t.Errorf("key length = %d, want 32", len(k1))
	}

	if k1 == IdempotencyKey(fp, "F2") {
		t.Error("different followers produced same key")
	}
	if k1 == IdempotencyKey(EventFingerprint("E2"), "F1") {
		t.Error("different fingerprints produced same key")
	}
}
