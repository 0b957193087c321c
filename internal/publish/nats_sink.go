package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultStream is the JetStream stream holding published facts.
const DefaultStream = "MARKET_FEED"

// ConnectNATS connects to url and makes sure the stream exists with a
// subject per topic under subjectPrefix.
func ConnectNATS(url, stream, subjectPrefix string, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:     stream,
		Subjects: []string{subjectPrefix + ".*"},
	}
	if _, err := js.AddStream(cfg); err != nil {
		if _, err := js.UpdateStream(cfg); err != nil {
			logger.Warn("failed to create or update stream",
				zap.String("stream", stream),
				zap.Error(err),
			)
		}
	}

	return nc, js, nil
}

// NATSSink publishes every message to JetStream on "{prefix}.{topic}".
// The message ID doubles as Nats-Msg-Id so the server drops re-deliveries
// inside its duplicate window.
type NATSSink struct {
	js     nats.JetStreamContext
	prefix string
}

// NewNATSSink creates a sink publishing under subjectPrefix.
func NewNATSSink(js nats.JetStreamContext, subjectPrefix string) *NATSSink {
	return &NATSSink{js: js, prefix: subjectPrefix}
}

// Subject returns the subject of a topic.
func (s *NATSSink) Subject(t Topic) string {
	return s.prefix + "." + strings.ToLower(string(t))
}

func (s *NATSSink) Name() string    { return "nats" }
func (s *NATSSink) Topics() []Topic { return nil }

// Deliver publishes the JSON envelope and waits for the stream ack.
func (s *NATSSink) Deliver(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := s.js.Publish(s.Subject(msg.Topic), data, nats.MsgId(msg.ID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("nats publish %s: %w", msg.Topic, err)
	}
	return nil
}

var _ Subscriber = (*NATSSink)(nil)
