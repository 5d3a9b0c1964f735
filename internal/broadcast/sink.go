package broadcast

import (
	"github.com/polymirror/engine/internal/model"
)

// Sink receives replication events. Hub and KafkaSink satisfy it.
type Sink interface {
	TradeAdmitted(trade model.LeaderTrade)
	ReplicaUpdated(order *model.ReplicaOrder)
}

// Tee fans events out to multiple sinks.
type Tee []Sink

func (t Tee) TradeAdmitted(trade model.LeaderTrade) {
	for _, s := range t {
		s.TradeAdmitted(trade)
	}
}

func (t Tee) ReplicaUpdated(order *model.ReplicaOrder) {
	for _, s := range t {
		s.ReplicaUpdated(order)
	}
}
