package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/tidings/pkg/slogx"
	"github.com/casualjim/tidings/pkg/uuidx"
	"github.com/casualjim/tidings/pubsub"
	"github.com/fogfish/opts"
)

var _ pubsub.Subscriber = (*Agent)(nil)

// ErrNotConnected is returned by subscription calls made before Start.
var ErrNotConnected = errors.New("client: agent is not connected")

// ErrDetached is returned to pushes that arrive after SaveState took its
// snapshot. The broker keeps such deliveries queued for the next session.
var ErrDetached = errors.New("client: agent state was saved")

// NewIdentity returns a fresh agent identity.
func NewIdentity() string {
	return "tidings.agent." + uuidx.NewToken()
}

// Agent is a publisher and subscriber at once. It is safe for concurrent use;
// the broker may push while the agent is publishing.
type Agent struct {
	identity string
	attempts int
	delay    time.Duration
	logger   *slog.Logger
	onEvent  func(pubsub.Event)
	onAdvert func(pubsub.Topic)

	server pubsub.Broker

	mu             sync.Mutex
	id             int
	detached       bool
	receivedEvents []pubsub.Event
	receivedTopics []pubsub.Topic
	subscribed     []pubsub.Topic
	keywords       []string
	advertised     []pubsub.Topic
	published      []pubsub.Event
}

// New creates an agent for server. Call Start before subscribing.
func New(server pubsub.Broker, options ...Option) (*Agent, error) {
	if server == nil {
		return nil, errors.New("client: a broker is required")
	}
	a := &Agent{
		attempts: defaultAttempts,
		delay:    defaultRetryDelay,
		server:   server,
	}
	if err := opts.Apply(a, options); err != nil {
		return nil, err
	}
	if a.attempts < 1 {
		return nil, fmt.Errorf("client: attempts must be at least 1, got %d", a.attempts)
	}
	if a.delay < 0 {
		return nil, fmt.Errorf("client: retry delay must not be negative, got %s", a.delay)
	}
	if a.identity == "" {
		a.identity = NewIdentity()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With(slogx.LoggerName("agent"), slog.String("identity", a.identity))
	return a, nil
}

// Start connects the agent, or reconnects it under its restored subscriber ID.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	previous := a.id
	a.mu.Unlock()

	var id int
	err := a.retry(ctx, "connect", func(ctx context.Context) (err error) {
		if previous > 0 {
			id, err = a.server.Reconnect(ctx, previous, a)
		} else {
			id, err = a.server.Connect(ctx, a)
		}
		return err
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.id = id
	a.detached = false
	a.mu.Unlock()
	a.logger.InfoContext(ctx, "agent connected", slogx.SubscriberID(id), slog.Bool("reconnected", previous > 0))
	return nil
}

// ID returns the subscriber ID issued by the broker, 0 before Start.
func (a *Agent) ID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

func (a *Agent) connectedID() (int, error) {
	id := a.ID()
	if id < 1 {
		return 0, ErrNotConnected
	}
	return id, nil
}

func (a *Agent) Identity() string {
	return a.identity
}

// Notify records a delivered event.
func (a *Agent) Notify(ctx context.Context, event pubsub.Event) error {
	a.mu.Lock()
	if a.detached {
		a.mu.Unlock()
		return ErrDetached
	}
	a.receivedEvents = append(a.receivedEvents, event.Clone())
	a.mu.Unlock()

	a.logger.DebugContext(ctx, "event received", slogx.EventID(event.ID), slog.String("title", event.Title))
	if a.onEvent != nil {
		a.onEvent(event.Clone())
	}
	return nil
}

// NotifyAdvertisement records an advertised topic.
func (a *Agent) NotifyAdvertisement(ctx context.Context, topic pubsub.Topic) error {
	a.mu.Lock()
	if a.detached {
		a.mu.Unlock()
		return ErrDetached
	}
	a.receivedTopics = append(a.receivedTopics, topic.Clone())
	a.mu.Unlock()

	a.logger.DebugContext(ctx, "topic advertised", slogx.TopicID(topic.ID), slog.String("name", topic.Name))
	if a.onAdvert != nil {
		a.onAdvert(topic.Clone())
	}
	return nil
}

// Advertise registers topic with the broker and returns it with its ID.
func (a *Agent) Advertise(ctx context.Context, topic pubsub.Topic) (pubsub.Topic, error) {
	var id int
	err := a.retry(ctx, "advertise", func(ctx context.Context) (err error) {
		id, err = a.server.AddTopic(ctx, topic)
		return err
	})
	if err != nil {
		return pubsub.Topic{}, err
	}

	stored := topic.Clone()
	stored.ID = id
	stored.Name = strings.TrimSpace(stored.Name)
	a.mu.Lock()
	a.advertised = append(a.advertised, stored)
	a.mu.Unlock()
	return stored.Clone(), nil
}

// Publish sends event and returns it with the ID the broker assigned.
func (a *Agent) Publish(ctx context.Context, event pubsub.Event) (pubsub.Event, error) {
	var id int
	err := a.retry(ctx, "publish", func(ctx context.Context) (err error) {
		id, err = a.server.Publish(ctx, event)
		return err
	})
	if err != nil {
		return pubsub.Event{}, err
	}

	stored := event.Clone()
	stored.ID = id
	a.mu.Lock()
	a.published = append(a.published, stored)
	a.mu.Unlock()
	return stored.Clone(), nil
}

// Subscribe subscribes the agent to topic. It reports false when the agent
// already was subscribed.
func (a *Agent) Subscribe(ctx context.Context, topic pubsub.Topic) (bool, error) {
	id, err := a.connectedID()
	if err != nil {
		return false, err
	}
	var added bool
	err = a.retry(ctx, "subscribe", func(ctx context.Context) (err error) {
		added, err = a.server.AddSubscriber(ctx, id, topic)
		return err
	})
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	if !slices.ContainsFunc(a.subscribed, sameTopic(topic)) {
		a.subscribed = append(a.subscribed, topic.Clone())
	}
	a.mu.Unlock()
	return added, nil
}

// Unsubscribe drops the subscription to topic.
func (a *Agent) Unsubscribe(ctx context.Context, topic pubsub.Topic) (bool, error) {
	id, err := a.connectedID()
	if err != nil {
		return false, err
	}
	var removed bool
	err = a.retry(ctx, "unsubscribe", func(ctx context.Context) (err error) {
		removed, err = a.server.RemoveSubscriber(ctx, id, topic)
		return err
	})
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	a.subscribed = slices.DeleteFunc(a.subscribed, sameTopic(topic))
	a.mu.Unlock()
	return removed, nil
}

// UnsubscribeAll drops every topic and keyword subscription.
func (a *Agent) UnsubscribeAll(ctx context.Context) error {
	id, err := a.connectedID()
	if err != nil {
		return err
	}
	err = a.retry(ctx, "unsubscribe all", func(ctx context.Context) error {
		_, err := a.server.RemoveSubscriberAll(ctx, id)
		return err
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.subscribed = nil
	a.keywords = nil
	a.mu.Unlock()
	return nil
}

// SubscribeKeyword asks for every event carrying keyword.
func (a *Agent) SubscribeKeyword(ctx context.Context, keyword string) (bool, error) {
	id, err := a.connectedID()
	if err != nil {
		return false, err
	}
	keyword = strings.TrimSpace(keyword)
	var added bool
	err = a.retry(ctx, "subscribe keyword", func(ctx context.Context) (err error) {
		added, err = a.server.SubscribeKeyword(ctx, id, keyword)
		return err
	})
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	if !slices.Contains(a.keywords, keyword) {
		a.keywords = append(a.keywords, keyword)
	}
	a.mu.Unlock()
	return added, nil
}

// UnsubscribeKeyword withdraws a keyword subscription.
func (a *Agent) UnsubscribeKeyword(ctx context.Context, keyword string) (bool, error) {
	id, err := a.connectedID()
	if err != nil {
		return false, err
	}
	keyword = strings.TrimSpace(keyword)
	var removed bool
	err = a.retry(ctx, "unsubscribe keyword", func(ctx context.Context) (err error) {
		removed, err = a.server.UnsubscribeKeyword(ctx, id, keyword)
		return err
	})
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	a.keywords = slices.DeleteFunc(a.keywords, func(k string) bool { return k == keyword })
	a.mu.Unlock()
	return removed, nil
}

// Topics lists every topic the broker knows.
func (a *Agent) Topics(ctx context.Context) ([]pubsub.Topic, error) {
	var topics []pubsub.Topic
	err := a.retry(ctx, "topics", func(ctx context.Context) (err error) {
		topics, err = a.server.Topics(ctx)
		return err
	})
	return topics, err
}

// FindTopic looks a topic up by name, ignoring case and surrounding spaces.
func (a *Agent) FindTopic(ctx context.Context, name string) (pubsub.Topic, bool, error) {
	topics, err := a.Topics(ctx)
	if err != nil {
		return pubsub.Topic{}, false, err
	}
	name = strings.TrimSpace(name)
	for _, t := range topics {
		if strings.EqualFold(strings.TrimSpace(t.Name), name) {
			return t, true, nil
		}
	}
	return pubsub.Topic{}, false, nil
}

func sameTopic(topic pubsub.Topic) func(pubsub.Topic) bool {
	return func(t pubsub.Topic) bool {
		if topic.ID != 0 && t.ID != 0 {
			return t.ID == topic.ID
		}
		return t.Key() == topic.Key()
	}
}

func (a *Agent) ReceivedEvents() []pubsub.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneEvents(a.receivedEvents)
}

func (a *Agent) ReceivedTopics() []pubsub.Topic {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneTopics(a.receivedTopics)
}

func (a *Agent) SubscribedTopics() []pubsub.Topic {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneTopics(a.subscribed)
}

func (a *Agent) Keywords() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.keywords)
}

func (a *Agent) AdvertisedTopics() []pubsub.Topic {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneTopics(a.advertised)
}

func (a *Agent) PublishedEvents() []pubsub.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneEvents(a.published)
}

func cloneTopics(in []pubsub.Topic) []pubsub.Topic {
	if in == nil {
		return nil
	}
	out := make([]pubsub.Topic, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

func cloneEvents(in []pubsub.Event) []pubsub.Event {
	if in == nil {
		return nil
	}
	out := make([]pubsub.Event, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
