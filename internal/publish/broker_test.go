package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	name    string
	topics  []Topic
	started chan struct{}
	release chan struct{}
	fail    bool

	mu       sync.Mutex
	received []Message
}

func newRecorder(name string, topics ...Topic) *recordingSubscriber {
	return &recordingSubscriber{name: name, topics: topics}
}

func (r *recordingSubscriber) Name() string { return r.name }

func (r *recordingSubscriber) Topics() []Topic {
	if len(r.topics) == 0 {
		return nil
	}
	return r.topics
}

func (r *recordingSubscriber) Deliver(_ context.Context, msg Message) error {
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	r.received = append(r.received, msg)
	r.mu.Unlock()
	if r.fail {
		return errors.New("sink down")
	}
	return nil
}

func (r *recordingSubscriber) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.received))
	for i, m := range r.received {
		out[i] = m.ID
	}
	return out
}

func msg(topic Topic, id string) Message {
	return Message{ID: id, Topic: topic, Payload: []byte("{}")}
}

func TestBroker_FanOutByTopic(t *testing.T) {
	b := NewBroker(BrokerOptions{})
	all := newRecorder("all")
	bars := newRecorder("bars", TopicBar)

	_, err := b.Subscribe(all)
	require.NoError(t, err)
	_, err = b.Subscribe(bars)
	require.NoError(t, err)

	ctx := context.Background()
	b.Publish(ctx, msg(TopicTrade, "t1"))
	b.Publish(ctx, msg(TopicBar, "b1"))
	b.Publish(ctx, msg(TopicTrade, "t2"))
	b.Close()

	assert.Equal(t, []string{"t1", "b1", "t2"}, all.ids())
	assert.Equal(t, []string{"b1"}, bars.ids())
}

func TestBroker_DropNewWhenQueueFull(t *testing.T) {
	b := NewBroker(BrokerOptions{QueueSize: 2})
	slow := newRecorder("slow")
	slow.started = make(chan struct{}, 1)
	slow.release = make(chan struct{})

	_, err := b.Subscribe(slow)
	require.NoError(t, err)

	ctx := context.Background()
	b.Publish(ctx, msg(TopicTrade, "m1"))

	select {
	case <-slow.started:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber never started delivery")
	}

	// m1 is in flight; m2 and m3 fill the queue; m4 and m5 are dropped.
	for i := 2; i <= 5; i++ {
		done := make(chan struct{})
		go func() {
			b.Publish(ctx, msg(TopicTrade, fmt.Sprintf("m%d", i)))
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Publish blocked on a slow subscriber")
		}
	}

	close(slow.release)
	b.Close()

	assert.Equal(t, []string{"m1", "m2", "m3"}, slow.ids())
}

func TestBroker_DeliveryErrorDoesNotStopSubscriber(t *testing.T) {
	b := NewBroker(BrokerOptions{})
	failing := newRecorder("failing")
	failing.fail = true

	_, err := b.Subscribe(failing)
	require.NoError(t, err)

	ctx := context.Background()
	b.Publish(ctx, msg(TopicSwap, "s1"))
	b.Publish(ctx, msg(TopicSwap, "s2"))
	b.Close()

	assert.Equal(t, []string{"s1", "s2"}, failing.ids())
}

func TestBroker_RejectsUnknownTopic(t *testing.T) {
	b := NewBroker(BrokerOptions{})
	defer b.Close()

	_, err := b.Subscribe(newRecorder("bad", Topic("PRICE")))
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestBroker_ClosedRejectsSubscribers(t *testing.T) {
	b := NewBroker(BrokerOptions{})
	b.Close()
	b.Close()

	_, err := b.Subscribe(newRecorder("late"))
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Publishing after close is a no-op.
	b.Publish(context.Background(), msg(TopicTrade, "x"))
}
