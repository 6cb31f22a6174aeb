package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes every event to a topic for external consumers beyond
// the one client holding the NDJSON connection open. Additive only: a
// publish failure is discarded without logging, never propagated back
// into the turn.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

func (k *KafkaSink) Emit(e Event) {
	b, err := Marshal(e)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = k.writer.WriteMessages(ctx, kafka.Message{Value: b})
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
