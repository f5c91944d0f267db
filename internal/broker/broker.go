package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/tidings/pkg/idset"
	"github.com/casualjim/tidings/pkg/slogx"
	"github.com/casualjim/tidings/pubsub"
	"github.com/fogfish/opts"
)

var _ pubsub.Broker = (*Broker)(nil)

// Broker is the in-memory publish/subscribe broker. It is safe for concurrent
// use. Retries only happen between Start and Close.
type Broker struct {
	sweepInterval time.Duration
	notifyTimeout time.Duration
	logger        *slog.Logger

	registry      *connectionRegistry
	subscriptions *subscriptionTable
	filter        *contentFilter
	events        *engine[pubsub.Event]
	adverts       *engine[pubsub.Topic]

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a broker. Call Start to run the retry sweep loops.
func New(options ...Option) (*Broker, error) {
	b := &Broker{
		sweepInterval: defaultSweepInterval,
		notifyTimeout: defaultNotifyTimeout,
	}
	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}
	if b.sweepInterval <= 0 {
		return nil, fmt.Errorf("broker: sweep interval must be positive, got %s", b.sweepInterval)
	}
	if b.notifyTimeout <= 0 {
		return nil, fmt.Errorf("broker: notify timeout must be positive, got %s", b.notifyTimeout)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With(slogx.LoggerName("broker"))

	b.registry = newConnectionRegistry()
	b.subscriptions = newSubscriptionTable()
	b.filter = newContentFilter()
	b.events = newEngine("events", b.registry, notifyEvent, b.sweepInterval, b.notifyTimeout, b.logger)
	b.adverts = newEngine("advertisements", b.registry, notifyAdvertisement, b.sweepInterval, b.notifyTimeout, b.logger)
	return b, nil
}

// Start launches the event and advertisement sweep loops. Subsequent calls are
// no-ops. The loops stop when ctx is done or Close is called.
func (b *Broker) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		ctx, b.cancel = context.WithCancel(ctx)
		b.wg.Add(2)
		go func() {
			defer b.wg.Done()
			b.events.run(ctx)
		}()
		go func() {
			defer b.wg.Done()
			b.adverts.run(ctx)
		}()
	})
}

// Close stops the sweep loops and waits for them to exit. Queued items are
// dropped with the broker.
func (b *Broker) Close() error {
	b.startOnce.Do(func() {})
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	return nil
}

// Connect issues a fresh subscriber ID bound to sub.
func (b *Broker) Connect(ctx context.Context, sub pubsub.Subscriber) (int, error) {
	if sub == nil {
		return 0, pubsub.ErrNilSubscriber
	}
	id := b.registry.connect(sub)
	b.logger.InfoContext(ctx, "subscriber connected", slogx.SubscriberID(id), slog.String("identity", sub.Identity()))
	return id, nil
}

// Reconnect binds sub to a previously issued subscriber ID. The ID is trusted
// as given: there is no proof the caller owns it. An ID below 1 is treated as a
// first connection.
func (b *Broker) Reconnect(ctx context.Context, id int, sub pubsub.Subscriber) (int, error) {
	if sub == nil {
		return 0, pubsub.ErrNilSubscriber
	}
	if id < 1 {
		return b.Connect(ctx, sub)
	}
	if known := b.registry.reconnect(id, sub); !known {
		b.logger.WarnContext(ctx, "reconnect with an id that was never issued", slogx.SubscriberID(id), slog.String("identity", sub.Identity()))
	} else {
		b.logger.InfoContext(ctx, "subscriber reconnected", slogx.SubscriberID(id), slog.String("identity", sub.Identity()))
	}
	return id, nil
}

// Unbind marks id as unreachable. Its subscriptions and pending deliveries are
// kept.
func (b *Broker) Unbind(ctx context.Context, id int) error {
	if b.registry.unbind(id) {
		b.logger.InfoContext(ctx, "subscriber unbound", slogx.SubscriberID(id))
	}
	return nil
}

// GetSubscriber returns the identity currently bound to id.
func (b *Broker) GetSubscriber(_ context.Context, id int) (string, bool, error) {
	sub, ok := b.registry.lookup(id)
	if !ok {
		return "", false, nil
	}
	return sub.Identity(), true, nil
}

// AddTopic registers topic and advertises it to every subscriber ID ever
// issued. It returns 0 and ErrTopicExists when the name is taken.
func (b *Broker) AddTopic(ctx context.Context, topic pubsub.Topic) (int, error) {
	if strings.TrimSpace(topic.Name) == "" {
		return 0, pubsub.ErrInvalidTopic
	}
	stored, ok := b.subscriptions.add(topic)
	if !ok {
		return 0, pubsub.ErrTopicExists
	}

	audience := idset.New(b.registry.ids()...)
	left := b.adverts.dispatch(ctx, stored, audience)
	b.logger.InfoContext(ctx, "topic advertised", slogx.TopicID(stored.ID), slog.String("name", stored.Name), slogx.Pending(left))
	return stored.ID, nil
}

// Topics lists every advertised topic in advertisement order.
func (b *Broker) Topics(context.Context) ([]pubsub.Topic, error) {
	return b.subscriptions.topics(), nil
}

// AddSubscriber subscribes id to topic. It returns false without error when id
// was already subscribed.
func (b *Broker) AddSubscriber(ctx context.Context, id int, topic pubsub.Topic) (bool, error) {
	added, err := b.subscriptions.subscribe(id, topic)
	if added {
		b.logger.DebugContext(ctx, "subscribed", slogx.SubscriberID(id), slogx.TopicID(topic.ID), slog.String("name", topic.Name))
	}
	return added, err
}

// RemoveSubscriber unsubscribes id from topic. Deliveries already pending for
// id are not withdrawn.
func (b *Broker) RemoveSubscriber(ctx context.Context, id int, topic pubsub.Topic) (bool, error) {
	removed, err := b.subscriptions.unsubscribe(id, topic)
	if removed {
		b.logger.DebugContext(ctx, "unsubscribed", slogx.SubscriberID(id), slogx.TopicID(topic.ID), slog.String("name", topic.Name))
	}
	return removed, err
}

// RemoveSubscriberAll drops every topic and keyword subscription of id. It
// always succeeds.
func (b *Broker) RemoveSubscriberAll(ctx context.Context, id int) (bool, error) {
	b.subscriptions.unsubscribeAll(id)
	b.filter.unsubscribeAll(id)
	b.logger.DebugContext(ctx, "unsubscribed from everything", slogx.SubscriberID(id))
	return true, nil
}

// SubscribeKeyword registers interest of id in every event carrying keyword,
// whatever its topic.
func (b *Broker) SubscribeKeyword(_ context.Context, id int, keyword string) (bool, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false, pubsub.ErrInvalidKeyword
	}
	return b.filter.subscribe(id, keyword), nil
}

// UnsubscribeKeyword withdraws a keyword subscription.
func (b *Broker) UnsubscribeKeyword(_ context.Context, id int, keyword string) (bool, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false, pubsub.ErrInvalidKeyword
	}
	return b.filter.unsubscribe(id, keyword), nil
}

// Publish assigns an ID to event and delivers it to the topic's subscribers and
// to everyone whose keywords match. It returns after one delivery attempt;
// unreachable subscribers are retried by the sweep loop.
func (b *Broker) Publish(ctx context.Context, event pubsub.Event) (int, error) {
	if event.Published() {
		return 0, pubsub.ErrAlreadyPublished
	}
	stamped, audience, err := b.subscriptions.stamp(event)
	if err != nil {
		return 0, err
	}
	audience.Union(b.filter.match(stamped.Keywords))

	left := b.events.dispatch(ctx, stamped, audience)
	b.logger.InfoContext(ctx, "event published", slogx.EventID(stamped.ID), slogx.TopicID(stamped.Topic.ID), slog.String("title", stamped.Title), slogx.Pending(left))
	return stamped.ID, nil
}

// PendingNotifications returns the subscribers still waiting for event id.
// It is empty once everyone was reached.
func (b *Broker) PendingNotifications(id int) []int {
	ids, _ := b.events.queue.find(func(e pubsub.Event) bool { return e.ID == id })
	return ids
}

// PendingAdvertisements returns the subscribers still waiting for the
// advertisement of topic id.
func (b *Broker) PendingAdvertisements(id int) []int {
	ids, _ := b.adverts.queue.find(func(t pubsub.Topic) bool { return t.ID == id })
	return ids
}

// Snapshot is a point in time view of the broker state.
type Snapshot struct {
	Topics                []TopicSubscribers `json:"topics"`
	Keywords              map[string][]int   `json:"keywords"`
	Connections           []Connection       `json:"connections"`
	PendingEvents         int                `json:"pending_events"`
	PendingAdvertisements int                `json:"pending_advertisements"`
}

// Snapshot captures topics with their subscribers, keyword buckets,
// connections and retry queue depths. Each collection is read under its own
// lock so the view is not atomic across collections.
func (b *Broker) Snapshot() Snapshot {
	return Snapshot{
		Topics:                b.subscriptions.snapshot(),
		Keywords:              b.filter.snapshot(),
		Connections:           b.registry.snapshot(),
		PendingEvents:         b.events.queue.len(),
		PendingAdvertisements: b.adverts.queue.len(),
	}
}

// Stats are broker wide counters.
type Stats struct {
	Topics                int `json:"topics"`
	Subscribers           int `json:"subscribers"`
	Connected             int `json:"connected"`
	Keywords              int `json:"keywords"`
	PendingEvents         int `json:"pending_events"`
	PendingAdvertisements int `json:"pending_advertisements"`
}

// Stats counts topics, issued subscriber IDs, bound subscribers, keyword
// buckets and queued deliveries.
func (b *Broker) Stats() Stats {
	snap := b.Snapshot()
	stats := Stats{
		Topics:                len(snap.Topics),
		Subscribers:           len(snap.Connections),
		Keywords:              len(snap.Keywords),
		PendingEvents:         snap.PendingEvents,
		PendingAdvertisements: snap.PendingAdvertisements,
	}
	for _, c := range snap.Connections {
		if c.Connected {
			stats.Connected++
		}
	}
	return stats
}
