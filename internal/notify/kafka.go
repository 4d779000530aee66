package notify

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes every alert as one message; the key is the alert kind.
type Kafka struct {
	w messageWriter
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Send(ctx context.Context, text string) error {
	kind := KindFrom(ctx)
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(kind),
		Value:   []byte(text),
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "kind", Value: []byte(kind)}},
	})
}

func (k *Kafka) Close() error { return k.w.Close() }
