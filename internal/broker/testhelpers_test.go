package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/casualjim/tidings/pubsub"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("subscriber unreachable")

// recordingSubscriber records every callback. While unreachable it fails every
// callback the way a dead transport would.
type recordingSubscriber struct {
	identity    string
	unreachable atomic.Bool

	mu      sync.Mutex
	events  []pubsub.Event
	topics  []pubsub.Topic
	attempt int
}

func newRecordingSubscriber(identity string) *recordingSubscriber {
	return &recordingSubscriber{identity: identity}
}

func (r *recordingSubscriber) Identity() string { return r.identity }

func (r *recordingSubscriber) Notify(_ context.Context, e pubsub.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt++
	if r.unreachable.Load() {
		return errUnreachable
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSubscriber) NotifyAdvertisement(_ context.Context, t pubsub.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt++
	if r.unreachable.Load() {
		return errUnreachable
	}
	r.topics = append(r.topics, t)
	return nil
}

func (r *recordingSubscriber) receivedEvents() []pubsub.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pubsub.Event(nil), r.events...)
}

func (r *recordingSubscriber) receivedTopics() []pubsub.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pubsub.Topic(nil), r.topics...)
}

func (r *recordingSubscriber) attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// blockingSubscriber never answers until its context gives up.
type blockingSubscriber struct{ calls atomic.Int32 }

func (b *blockingSubscriber) Identity() string { return "blocking" }

func (b *blockingSubscriber) Notify(ctx context.Context, _ pubsub.Event) error {
	b.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingSubscriber) NotifyAdvertisement(ctx context.Context, _ pubsub.Topic) error {
	b.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

type panickingSubscriber struct{}

func (panickingSubscriber) Identity() string { return "panicking" }

func (panickingSubscriber) Notify(context.Context, pubsub.Event) error {
	panic("boom")
}

func (panickingSubscriber) NotifyAdvertisement(context.Context, pubsub.Topic) error {
	panic("boom")
}

// newTestBroker returns a started broker with a fast sweep cadence that is
// closed when the test ends.
func newTestBroker(t *testing.T, options ...Option) *Broker {
	t.Helper()
	options = append([]Option{
		WithSweepInterval(10 * time.Millisecond),
		WithNotifyTimeout(50 * time.Millisecond),
	}, options...)
	b, err := New(options...)
	require.NoError(t, err)
	b.Start(context.Background())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func connect(t *testing.T, b *Broker, name string) (*recordingSubscriber, int) {
	t.Helper()
	sub := newRecordingSubscriber(name)
	id, err := b.Connect(context.Background(), sub)
	require.NoError(t, err)
	return sub, id
}

func advertise(t *testing.T, b *Broker, name string, keywords ...string) pubsub.Topic {
	t.Helper()
	topic := pubsub.NewTopic(name, keywords...)
	id, err := b.AddTopic(context.Background(), topic)
	require.NoError(t, err, fmt.Sprintf("advertise %s", name))
	topic.ID = id
	return topic
}
