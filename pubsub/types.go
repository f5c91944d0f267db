package pubsub

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-openapi/strfmt"
)

// Topic is a named channel with a default keyword set.
type Topic struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords,omitempty"`
}

// NewTopic creates an unadvertised topic. Keywords are trimmed and deduplicated.
func NewTopic(name string, keywords ...string) Topic {
	return Topic{
		Name:     strings.TrimSpace(name),
		Keywords: normalizeKeywords(keywords),
	}
}

// Key is the identity used to deduplicate topics.
func (t Topic) Key() string {
	return strings.TrimSpace(t.Name)
}

// Equal reports whether both topics have the same name. IDs are ignored.
func (t Topic) Equal(other Topic) bool {
	return t.Key() == other.Key()
}

// Clone returns a copy that shares no memory with t.
func (t Topic) Clone() Topic {
	t.Keywords = slices.Clone(t.Keywords)
	return t
}

func (t Topic) String() string {
	return fmt.Sprintf("%d-%s [%s]", t.ID, t.Name, strings.Join(t.Keywords, ", "))
}

// Event is a message published against a topic.
type Event struct {
	ID          int             `json:"id"`
	Topic       Topic           `json:"topic"`
	Title       string          `json:"title"`
	Content     string          `json:"content,omitempty"`
	Keywords    []string        `json:"keywords,omitempty"`
	PublishedAt strfmt.DateTime `json:"published_at,omitempty"`
}

// NewEvent creates an unpublished event. When no keywords are given the event
// inherits the keywords of its topic.
func NewEvent(topic Topic, title, content string, keywords ...string) Event {
	kw := normalizeKeywords(keywords)
	if len(kw) == 0 {
		kw = slices.Clone(topic.Keywords)
	}
	return Event{
		Topic:    topic.Clone(),
		Title:    strings.TrimSpace(title),
		Content:  content,
		Keywords: kw,
	}
}

// Equal reports whether both events have the same topic and title.
func (e Event) Equal(other Event) bool {
	return e.Topic.Equal(other.Topic) && e.Title == other.Title
}

// Published reports whether the broker already assigned an ID.
func (e Event) Published() bool {
	return e.ID != 0
}

// Clone returns a copy that shares no memory with e.
func (e Event) Clone() Event {
	e.Topic = e.Topic.Clone()
	e.Keywords = slices.Clone(e.Keywords)
	return e
}

func (e Event) String() string {
	return fmt.Sprintf("%d %q on %s", e.ID, e.Title, e.Topic)
}

// ParseKeywords splits a comma separated keyword list.
func ParseKeywords(s string) []string {
	return normalizeKeywords(strings.Split(s, ","))
}

func normalizeKeywords(in []string) []string {
	var out []string
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" || slices.Contains(out, k) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Subscriber is the set of push callbacks the broker invokes on a connected
// client. A returned error means the client was not reached and the broker will
// try again later.
type Subscriber interface {
	// Identity is the stable address a transport uses to reach the client.
	Identity() string
	Notify(context.Context, Event) error
	NotifyAdvertisement(context.Context, Topic) error
}

// Broker is the set of operations a client can invoke on the broker.
type Broker interface {
	Connect(ctx context.Context, sub Subscriber) (int, error)
	Reconnect(ctx context.Context, id int, sub Subscriber) (int, error)
	Unbind(ctx context.Context, id int) error
	GetSubscriber(ctx context.Context, id int) (string, bool, error)

	AddTopic(ctx context.Context, topic Topic) (int, error)
	Topics(ctx context.Context) ([]Topic, error)

	AddSubscriber(ctx context.Context, id int, topic Topic) (bool, error)
	RemoveSubscriber(ctx context.Context, id int, topic Topic) (bool, error)
	RemoveSubscriberAll(ctx context.Context, id int) (bool, error)
	SubscribeKeyword(ctx context.Context, id int, keyword string) (bool, error)
	UnsubscribeKeyword(ctx context.Context, id int, keyword string) (bool, error)

	Publish(ctx context.Context, event Event) (int, error)
}
