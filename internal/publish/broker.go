package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"market-feed/internal/observability"
)

// Broker errors.
var (
	ErrQueueFull    = errors.New("subscriber queue full")
	ErrQueueClosed  = errors.New("subscriber queue closed")
	ErrUnknownTopic = errors.New("unknown topic")
)

// Default configuration values.
const (
	DefaultQueueSize      = 1024
	DefaultDeliverTimeout = 5 * time.Second
)

// Publisher accepts facts. Publish never blocks on subscribers and never
// reports their failures.
type Publisher interface {
	Publish(ctx context.Context, msg Message)
}

// Subscriber receives messages of the topics it names. Deliver runs on the
// subscriber's own goroutine, one message at a time, in publish order.
type Subscriber interface {
	Name() string
	// Topics returns the topics to receive. Nil means all topics.
	Topics() []Topic
	Deliver(ctx context.Context, msg Message) error
}

// BrokerOptions configures Broker.
type BrokerOptions struct {
	// QueueSize bounds each subscriber's backlog. When full, new messages
	// are dropped for that subscriber only.
	QueueSize      int
	DeliverTimeout time.Duration
	Logger         *zap.Logger
}

// Broker is an in-process fan-out publisher with one bounded queue and
// delivery goroutine per subscriber.
type Broker struct {
	opts   BrokerOptions
	logger *zap.Logger

	mu     sync.RWMutex
	subs   []*subscription
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	id     string
	sub    Subscriber
	topics map[Topic]bool // nil = all
	ch     chan Message
}

func (s *subscription) wants(t Topic) bool {
	return s.topics == nil || s.topics[t]
}

// tryEnqueue never blocks. Callers hold the broker read lock, so the channel
// is open.
func (s *subscription) tryEnqueue(msg Message) error {
	select {
	case s.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// NewBroker creates a broker with no subscribers.
func NewBroker(opts BrokerOptions) *Broker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.DeliverTimeout <= 0 {
		opts.DeliverTimeout = DefaultDeliverTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{opts: opts, logger: logger}
}

// Subscribe registers sub and starts its delivery goroutine. It returns the
// subscription ID.
func (b *Broker) Subscribe(sub Subscriber) (string, error) {
	var topics map[Topic]bool
	if ts := sub.Topics(); ts != nil {
		topics = make(map[Topic]bool, len(ts))
		for _, t := range ts {
			if !t.IsValid() {
				return "", fmt.Errorf("subscribe %s to %q: %w", sub.Name(), t, ErrUnknownTopic)
			}
			topics[t] = true
		}
	}

	s := &subscription{
		id:     uuid.NewString(),
		sub:    sub,
		topics: topics,
		ch:     make(chan Message, b.opts.QueueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrQueueClosed
	}
	b.subs = append(b.subs, s)
	b.wg.Add(1)
	go b.run(s)

	b.logger.Info("subscriber registered",
		zap.String("subscriber", sub.Name()),
		zap.String("id", s.id),
	)
	return s.id, nil
}

// Publish enqueues msg for every subscriber of its topic. A full queue drops
// msg for that subscriber only.
func (b *Broker) Publish(ctx context.Context, msg Message) {
	if !msg.Topic.IsValid() {
		b.logger.Warn("dropping message with unknown topic", zap.String("topic", string(msg.Topic)))
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	observability.RecordPublished(string(msg.Topic))
	for _, s := range b.subs {
		if !s.wants(msg.Topic) {
			continue
		}
		if err := s.tryEnqueue(msg); err != nil {
			observability.RecordDropped(s.sub.Name())
			b.logger.Debug("message dropped",
				zap.String("subscriber", s.sub.Name()),
				zap.String("topic", string(msg.Topic)),
				zap.String("id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		observability.SetQueueLength(s.sub.Name(), len(s.ch))
	}
}

// Close stops accepting messages, delivers what is queued and waits for all
// delivery goroutines to finish.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Broker) run(s *subscription) {
	defer b.wg.Done()
	name := s.sub.Name()

	for msg := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.DeliverTimeout)
		err := s.sub.Deliver(ctx, msg)
		cancel()
		if err != nil {
			observability.RecordSinkError(name)
			b.logger.Warn("delivery failed",
				zap.String("subscriber", name),
				zap.String("topic", string(msg.Topic)),
				zap.String("id", msg.ID),
				zap.Error(err),
			)
		}
	}
}

var _ Publisher = (*Broker)(nil)
