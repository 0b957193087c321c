package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds Kafka connection configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink writes every message to one Kafka topic keyed by venue, so facts
// of a venue stay ordered within their partition.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink with a hash-balanced writer.
func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

func (s *KafkaSink) Name() string    { return "kafka" }
func (s *KafkaSink) Topics() []Topic { return nil }

// Deliver writes the JSON envelope with the topic and message ID as headers.
func (s *KafkaSink) Deliver(ctx context.Context, msg Message) error {
	m, err := kafkaMessage(msg)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, m); err != nil {
		return fmt.Errorf("kafka write %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func kafkaMessage(msg Message) (kafka.Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal message: %w", err)
	}
	return kafka.Message{
		Key:   []byte(msg.Venue.String()),
		Value: data,
		Time:  time.UnixMilli(msg.Time),
		Headers: []kafka.Header{
			{Key: "topic", Value: []byte(msg.Topic)},
			{Key: "id", Value: []byte(msg.ID)},
		},
	}, nil
}

var _ Subscriber = (*KafkaSink)(nil)
