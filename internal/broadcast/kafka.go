package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/polymirror/engine/internal/model"
)

// KafkaSink mirrors replication events onto a Kafka topic for offline
// consumers. Writes are asynchronous; delivery failures are logged and
// dropped, matching the best-effort contract of the hub.
type KafkaSink struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &KafkaSink{logger: logger.With("component", "kafka-sink")}
	s.writer = &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
		Async:    true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				s.logger.Warn("kafka delivery failed", "messages", len(messages), "error", err)
			}
		},
	}
	return s
}

// TradeAdmitted publishes a trade_admitted event keyed by leader id.
func (s *KafkaSink) TradeAdmitted(trade model.LeaderTrade) {
	s.emit(NewTradeAdmitted(trade), trade.LeaderID)
}

// ReplicaUpdated publishes a replica_update event keyed by follower id,
// so each follower's updates stay ordered within a partition.
func (s *KafkaSink) ReplicaUpdated(order *model.ReplicaOrder) {
	s.emit(NewReplicaUpdate(order), order.FollowerID)
}

func (s *KafkaSink) emit(event Event, key string) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshaling event", "type", event.Type, "error", err)
		return
	}
	err = s.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
	if err != nil {
		// Async writer only errors here on local enqueue problems.
		s.logger.Warn("kafka enqueue failed", "type", event.Type, "error", err)
	}
}

// Close flushes pending messages and releases the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
